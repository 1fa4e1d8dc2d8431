package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/iborker/iborker/internal/clientid"
	"github.com/iborker/iborker/internal/lockstore"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and maintain the lock directory",
	Long: `Inspect and maintain the directory of client ID lock markers.

Each marker client_<id>.lock records the process holding <id>. A marker
is stale when its process has exited (or its PID was recycled) and
corrupt when it cannot be decoded.`,
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lock markers and their status",
	RunE:  runLocksList,
}

var locksCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale lock markers",
	Long: `Clean removes markers whose owning process is gone, and corrupt
markers old enough that they are not still being written. Markers held by
live processes, or by processes on another host, are never removed.

Use --dry-run to see what would be removed without making changes.`,
	RunE: runLocksClean,
}

var locksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print claims and releases as they happen",
	RunE:  runLocksWatch,
}

var (
	locksCleanDryRun bool
	locksCleanForce  bool
)

// confirm asks the operator a yes/no question. Replaced in tests.
var confirm = func(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message}, &ok)
	return ok, err
}

func init() {
	rootCmd.AddCommand(locksCmd)
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksCleanCmd)
	locksCmd.AddCommand(locksWatchCmd)

	locksCleanCmd.Flags().BoolVar(&locksCleanDryRun, "dry-run", false, "Show what would be removed without making changes")
	locksCleanCmd.Flags().BoolVarP(&locksCleanForce, "force", "f", false, "Skip confirmation prompt")
}

func runLocksList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No lock markers in %s\n", store.Dir())
		return nil
	}

	printEntries(out, newPalette(out), entries, cfg.ClientID.Start, time.Now())
	return nil
}

func printEntries(w io.Writer, p palette, entries []lockstore.Entry, floor int, now time.Time) {
	fmt.Fprintln(w, p.render(p.header, fmt.Sprintf("%-6s %-9s %-10s %-8s %-16s %-8s %s",
		"ID", "CATEGORY", "TOOL", "PID", "HOST", "AGE", "STATUS")))

	for _, e := range entries {
		category := "-"
		if c, ok := clientid.CategoryOf(floor, e.ClientID); ok {
			category = string(c)
		}

		tool, pid, host := "-", "-", "-"
		age := now.Sub(e.ModTime)
		if m := e.Marker; m != nil {
			if m.Tool != "" {
				tool = m.Tool
			}
			pid = strconv.Itoa(m.PID)
			if m.Hostname != "" {
				host = m.Hostname
			}
			if !m.CreatedAt.IsZero() {
				age = now.Sub(m.CreatedAt)
			}
		}

		fmt.Fprintf(w, "%-6d %-9s %-10s %-8s %-16s %-8s %s\n",
			e.ClientID, category, tool, pid, host, formatAge(age),
			p.render(p.statusStyle(e.Status), e.Status.String()))
	}
}

// formatAge renders a duration compactly, e.g. "42s", "5m", "3h", "2d".
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func runLocksClean(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	var removable []lockstore.Entry
	for _, e := range entries {
		if store.Removable(e) {
			removable = append(removable, e)
		}
	}

	out := cmd.OutOrStdout()
	if len(removable) == 0 {
		fmt.Fprintln(out, "No stale locks found. Nothing to clean up.")
		return nil
	}

	// Show what will be removed
	fmt.Fprintf(out, "Stale locks in %s:\n", store.Dir())
	printEntries(out, newPalette(out), removable, cfg.ClientID.Start, time.Now())

	// If dry-run, stop here
	if locksCleanDryRun {
		fmt.Fprintln(out, "\nDry run mode - no changes made.")
		return nil
	}

	// Confirm unless forced
	if !locksCleanForce {
		ok, err := confirm(fmt.Sprintf("Remove %d stale lock(s)?", len(removable)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cleanup cancelled.")
			return nil
		}
	}

	// Liveness is re-checked under the reclaim guard
	freed, err := store.CleanStale(cmd.Context())
	for _, id := range freed {
		fmt.Fprintf(out, "Removed %s\n", lockstore.MarkerName(id))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleanup complete: %d lock(s) removed.\n", len(freed))
	return nil
}

func runLocksWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	w, err := store.Watch()
	if err != nil {
		return err
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	p := newPalette(out)
	fmt.Fprintf(out, "Watching %s... (Ctrl+C to stop)\n\n", store.Dir())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatEvent(p, ev))
		case err := <-w.Errors():
			logger.Warn("watch error", "error", err.Error())
		}
	}
}

func formatEvent(p palette, ev lockstore.Event) string {
	ts := p.render(p.muted, ev.Time.Format("15:04:05.000"))
	if ev.Kind == lockstore.EventReleased {
		return fmt.Sprintf("%s %s %d", ts, p.cell(p.stale, 8, "released"), ev.ClientID)
	}

	line := fmt.Sprintf("%s %s %d", ts, p.cell(p.held, 8, "claimed"), ev.ClientID)
	if ev.Entry != nil && ev.Entry.Marker != nil {
		m := ev.Entry.Marker
		line += fmt.Sprintf(" pid=%d", m.PID)
		if m.Tool != "" {
			line += " tool=" + m.Tool
		}
		if m.Hostname != "" {
			line += " host=" + m.Hostname
		}
	}
	return line
}
