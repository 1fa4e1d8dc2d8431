package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iborker/iborker/internal/clientid"
	"github.com/iborker/iborker/internal/config"
	"github.com/iborker/iborker/internal/errors"
	"github.com/iborker/iborker/internal/logging"
)

// ExitError carries the exit status of a command started by run.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// forwardedSignals are passed on to the child instead of ending iborker.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

var runCmd = &cobra.Command{
	Use:   "run --tool <name> -- <command> [args...]",
	Short: "Run a command with an allocated client ID",
	Long: `Run acquires a client ID for the given tool, starts the command with
IB_CLIENT_ID, IB_HOST and IB_PORT set, and releases the ID when the
command exits. SIGINT, SIGTERM and SIGHUP are forwarded to the command.
iborker exits with the command's status.

Examples:
  # Run the history downloader with the next free CLI id
  iborker run --tool history -- python -m ib_history AAPL

  # Use a fixed id instead of the lock directory
  IB_CLIENT_ID_MODE=fixed IB_CLIENT_ID_FIXED=7 iborker run --tool trader -- ./trader`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var runTool string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runTool, "tool", "t", "", "Tool name (e.g. history, trader, stdev)")
	_ = runCmd.MarkFlagRequired("tool")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger = logger.WithTool(runTool)

	metrics := clientid.NewMetrics()
	defer writeMetrics(cfg, metrics, logger)

	alloc, err := acquire(cmd.Context(), cfg, runTool, logger, metrics)
	if err != nil {
		return err
	}

	// run forwards signals to the child itself, so the holder only covers
	// normal exit and atexit.Exit.
	holder := clientid.Hold(alloc, logger, clientid.WithSignals())
	defer holder.Close()

	code, err := runChild(cmd, args, alloc.ClientID, cfg.Gateway)
	if relErr := holder.Close(); relErr != nil {
		logger.Warn("release failed", "error", relErr.Error())
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// acquire obtains the client ID for tool as configured. Fixed mode never
// opens the lock directory.
func acquire(ctx context.Context, cfg *config.Config, tool string, logger *logging.Logger, metrics *clientid.Metrics) (*clientid.Allocation, error) {
	req, err := clientid.RequestFromConfig(cfg, tool)
	if err != nil {
		return nil, err
	}

	var claimer clientid.Claimer
	if _, fixed := req.(clientid.Fixed); !fixed {
		store, err := openStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		claimer = store
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Allocation.Timeout)
	defer cancel()

	allocator := clientid.NewAllocator(claimer, clientid.WithLogger(logger), clientid.WithMetrics(metrics))
	return allocator.Acquire(ctx, req)
}

// childEnv returns the environment for a launched tool.
func childEnv(base []string, clientID int, gw config.GatewayConfig) []string {
	env := append([]string(nil), base...)
	return append(env,
		"IB_CLIENT_ID="+strconv.Itoa(clientID),
		"IB_HOST="+gw.Host,
		"IB_PORT="+strconv.Itoa(gw.Port),
	)
}

func runChild(cmd *cobra.Command, args []string, clientID int, gw config.GatewayConfig) (int, error) {
	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = childEnv(os.Environ(), clientID, gw)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, forwardedSignals...)
	defer signal.Stop(sigCh)

	if err := child.Start(); err != nil {
		return 0, errors.Wrapf(err, "start %s", args[0])
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				_ = child.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	err := child.Wait()
	close(done)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "wait for %s", args[0])
	}
	return 0, nil
}

func writeMetrics(cfg *config.Config, metrics *clientid.Metrics, logger *logging.Logger) {
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err.Error())
	}
}
