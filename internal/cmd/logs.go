package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iborker/iborker/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View iborker logs",
	Long: `View and filter the iborker log file in logging.dir.

Examples:
  # Show the last 50 lines
  iborker logs

  # Follow logs in real-time
  iborker logs -f

  # Only warnings and errors from the last hour
  iborker logs --level warn --since 1h

  # Everything about client id 12
  iborker logs --client-id 12 -n 0`,
	RunE: runLogs,
}

var (
	logsTail     int
	logsFollow   bool
	logsLevel    string
	logsSince    string
	logsGrep     string
	logsClientID int
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().IntVar(&logsClientID, "client-id", -1, "Only show entries for this client id")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time     time.Time      `json:"time"`
	Level    string         `json:"level"`
	Msg      string         `json:"msg"`
	Tool     string         `json:"tool,omitempty"`
	Category string         `json:"category,omitempty"`
	ClientID *int           `json:"client_id,omitempty"`
	Extra    map[string]any `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "tool", "category", "client_id"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects the entries to display
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
	clientID int
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	return slices.Index(logging.ValidLevels(), strings.ToUpper(level))
}

func (f logFilter) match(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.clientID >= 0 && (entry.ClientID == nil || *entry.ClientID != f.clientID) {
		return false
	}

	// Search in message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}

func (p palette) level(level string) string {
	text := "[" + strings.ToUpper(level) + "]"
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return p.render(p.muted, text)
	case logging.LevelInfo:
		return p.render(p.header, text)
	case logging.LevelWarn:
		return p.render(p.stale, text)
	case logging.LevelError:
		return p.render(p.broken, text)
	default:
		return text
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(p palette, entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(p.render(p.muted, "["+entry.Time.Format("15:04:05.000")+"]"))
	sb.WriteString(" ")
	sb.WriteString(p.level(entry.Level))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.Tool != "" {
		sb.WriteString(" " + p.render(p.held, "tool="+entry.Tool))
	}
	if entry.Category != "" {
		sb.WriteString(" " + p.render(p.held, "category="+entry.Category))
	}
	if entry.ClientID != nil {
		sb.WriteString(" " + p.render(p.held, fmt.Sprintf("client_id=%d", *entry.ClientID)))
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s%v", p.render(p.muted, k+"="), entry.Extra[k]))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	_ = logger.Close()

	out := cmd.OutOrStdout()
	if cfg.Logging.Dir == "" {
		fmt.Fprintln(out, "Logging goes to stderr. Set logging.dir (IB_LOGGING_DIR) to keep a log file.")
		return nil
	}

	logPath := filepath.Join(cfg.Logging.Dir, logging.LogFileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	filter := logFilter{minLevel: -1, clientID: logsClientID}
	if logsLevel != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = time.Now().Add(-duration)
	}
	if logsGrep != "" {
		filter.grep, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	p := newPalette(out)
	if logsFollow {
		return followLogs(cmd, p, logPath, filter)
	}
	return displayLogs(out, p, logPath, logsTail, filter)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, p palette, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			lines = append(lines, line)
			continue
		}
		if !filter.match(&entry) {
			continue
		}
		lines = append(lines, formatLogEntry(p, &entry))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(cmd *cobra.Command, p palette, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	ctx := cmd.Context()
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// No new data, wait briefly and try again
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		if filter.match(&entry) {
			fmt.Fprintln(out, formatLogEntry(p, &entry))
		}
	}
}
