package clientid

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tebeka/atexit"

	"github.com/iborker/iborker/internal/logging"
)

// DefaultSignals are the termination signals a Holder intercepts.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// Holder ties an allocation to the life of the process. The ID is released
// on Close, on atexit.Exit, or when a termination signal arrives. After a
// signal the default disposition is restored and the signal re-raised, so
// the process still dies with the conventional status. SIGKILL and crashes
// are covered by stale-marker reclamation instead.
type Holder struct {
	alloc  *Allocation
	logger *logging.Logger

	exitID  atexit.HandlerID
	signals chan os.Signal
	done    chan struct{}
	raise   func(os.Signal)

	once     sync.Once
	closeErr error
}

// HoldOption configures a Holder.
type HoldOption func(*holdOptions)

type holdOptions struct {
	signals []os.Signal
}

// WithSignals replaces DefaultSignals. With no arguments the Holder installs
// no signal handler, for callers that manage signals themselves.
func WithSignals(sigs ...os.Signal) HoldOption {
	return func(o *holdOptions) { o.signals = sigs }
}

// Hold registers alloc's release for every exit path.
func Hold(alloc *Allocation, logger *logging.Logger, opts ...HoldOption) *Holder {
	return hold(alloc, logger, raiseSignal, opts...)
}

func hold(alloc *Allocation, logger *logging.Logger, raise func(os.Signal), opts ...HoldOption) *Holder {
	o := holdOptions{signals: DefaultSignals}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	h := &Holder{
		alloc:  alloc,
		logger: logger.WithClientID(alloc.ClientID),
		done:   make(chan struct{}),
		raise:  raise,
	}
	h.exitID = atexit.Register(h.releaseAtExit)

	if len(o.signals) > 0 {
		h.signals = make(chan os.Signal, 1)
		signal.Notify(h.signals, o.signals...)
		go h.watch()
	}
	return h
}

// Allocation returns the held allocation.
func (h *Holder) Allocation() *Allocation { return h.alloc }

// ClientID returns the held client ID.
func (h *Holder) ClientID() int { return h.alloc.ClientID }

func (h *Holder) releaseAtExit() {
	if err := h.alloc.Release(); err != nil {
		h.logger.Error("failed to release client id at exit", "error", err.Error())
	}
}

func (h *Holder) watch() {
	select {
	case sig := <-h.signals:
		if err := h.alloc.Release(); err != nil {
			h.logger.Error("failed to release client id on signal", "signal", sig.String(), "error", err.Error())
		} else {
			h.logger.Info("client id released on signal", "signal", sig.String())
		}
		signal.Stop(h.signals)
		signal.Reset(sig)
		h.raise(sig)
	case <-h.done:
	}
}

// Close releases the allocation and removes the exit and signal hooks.
// Safe to call more than once.
func (h *Holder) Close() error {
	h.once.Do(func() {
		if h.signals != nil {
			signal.Stop(h.signals)
		}
		close(h.done)
		_ = h.exitID.Cancel()
		h.closeErr = h.alloc.Release()
	})
	return h.closeErr
}

func raiseSignal(sig os.Signal) {
	if s, ok := sig.(syscall.Signal); ok {
		_ = syscall.Kill(os.Getpid(), s)
		return
	}
	atexit.Exit(1)
}
