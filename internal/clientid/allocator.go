package clientid

import (
	"context"

	"github.com/iborker/iborker/internal/errors"
	"github.com/iborker/iborker/internal/lockstore"
	"github.com/iborker/iborker/internal/logging"
)

//go:generate mockgen -destination=mock_claimer_test.go -package=clientid . Claimer

// Claimer claims and releases individual client IDs. *lockstore.Store
// implements it.
type Claimer interface {
	TryClaim(ctx context.Context, clientID int, tool string) (*lockstore.Lock, error)
	Release(lock *lockstore.Lock) error
}

var _ Claimer = (*lockstore.Store)(nil)

// Allocator scans a category's range for the first ID it can claim. It
// keeps no state between calls; the claimer's atomic claim is the only
// serialization between processes.
type Allocator struct {
	claimer Claimer
	logger  *logging.Logger
	metrics *Metrics
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithLogger sets the allocator's logger.
func WithLogger(l *logging.Logger) AllocatorOption {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records allocation outcomes in m.
func WithMetrics(m *Metrics) AllocatorOption {
	return func(a *Allocator) { a.metrics = m }
}

// NewAllocator creates an Allocator that claims IDs through c.
func NewAllocator(c Claimer, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		claimer: c,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate claims the lowest free ID in category's range above floor. The
// category name is recorded as the tool in the lock marker.
func (a *Allocator) Allocate(ctx context.Context, category Category, floor int) (*Allocation, error) {
	return a.allocate(ctx, category, floor, string(category))
}

func (a *Allocator) allocate(ctx context.Context, category Category, floor int, tool string) (*Allocation, error) {
	alloc, err := a.scan(ctx, category, floor, tool)
	if err != nil {
		a.metrics.failed(category, failureReason(err))
		return nil, err
	}
	a.metrics.allocated(category, ModeAuto)
	return alloc, nil
}

func (a *Allocator) scan(ctx context.Context, category Category, floor int, tool string) (*Allocation, error) {
	r, err := RangeFor(category)
	if err != nil {
		return nil, errors.NewAllocationError("cannot allocate a client id", err).
			WithCategory(string(category))
	}
	if floor < 0 {
		return nil, errors.NewValidationError("allocation floor must be non-negative").
			WithField("client_id.start").WithValue(floor)
	}

	lo, hi := r.Span(floor)
	log := a.logger.WithCategory(string(category)).WithTool(tool)

	var live []errors.LiveHolder
	deadline := func() error {
		return errors.NewAllocationError("no client id claimed before the deadline",
			errors.Join(errors.ErrRangeExhausted, errors.ErrAllocationTimeout, ctx.Err())).
			WithCategory(string(category)).WithRange(lo, hi).WithLive(live)
	}

	for id := lo; id < hi; id++ {
		if ctx.Err() != nil {
			log.Warn("allocation deadline reached", "next_candidate", id)
			return nil, deadline()
		}

		lock, err := a.claimer.TryClaim(ctx, id, tool)
		switch {
		case err == nil:
			if ctx.Err() != nil {
				// Claimed too late for the caller to use it.
				if relErr := a.claimer.Release(lock); relErr != nil {
					log.Warn("failed to release late claim", "client_id", id, "error", relErr.Error())
				}
				return nil, deadline()
			}
			if lock.Reclaimed {
				a.metrics.reclaimed()
			}
			log.WithClientID(id).Info("client id allocated", "reclaimed", lock.Reclaimed, "conflicts", len(live))
			return newAllocation(id, ModeAuto, category, tool, func() error {
				a.metrics.released()
				if err := a.claimer.Release(lock); err != nil {
					log.WithClientID(id).Error("failed to release client id", "error", err.Error())
					return err
				}
				log.WithClientID(id).Info("client id released")
				return nil
			}), nil

		case errors.Is(err, errors.ErrAlreadyHeld):
			a.metrics.conflict(category)
			holder := errors.LiveHolder{ClientID: id}
			var held *lockstore.HeldError
			if errors.As(err, &held) {
				holder = held.Marker.Holder()
				holder.ClientID = id
			}
			live = append(live, holder)
			log.Debug("candidate held", "candidate", id, "holder_pid", holder.PID)

		case errors.Is(err, errors.ErrTimeout) && ctx.Err() != nil:
			log.Warn("allocation deadline reached waiting for the lock store", "candidate", id)
			return nil, deadline()

		default:
			log.Error("lock store failure", "candidate", id, "error", err.Error())
			return nil, errors.NewAllocationError("lock store failure", err).
				WithCategory(string(category)).WithRange(lo, hi).WithSeverity(errors.SeverityCritical)
		}
	}

	log.Warn("client id range exhausted", "lo", lo, "hi", hi-1, "live", len(live))
	return nil, errors.NewAllocationError("no free client id", errors.ErrRangeExhausted).
		WithCategory(string(category)).WithRange(lo, hi).WithLive(live)
}
