package clientid

import (
	"context"
	"fmt"

	"github.com/iborker/iborker/internal/config"
	"github.com/iborker/iborker/internal/errors"
)

// Request describes how a tool wants its client ID: Fixed or Auto.
type Request interface {
	isRequest()
	fmt.Stringer
}

// Fixed requests a specific client ID. The lock store is never consulted
// and releasing the allocation does nothing; the operator is responsible
// for uniqueness.
type Fixed struct {
	ClientID int
	Tool     string
}

// Auto requests the lowest free ID in Category's range above Floor.
type Auto struct {
	Category Category
	Floor    int
	Tool     string
}

func (Fixed) isRequest() {}
func (Auto) isRequest()  {}

func (f Fixed) String() string { return fmt.Sprintf("fixed(%d)", f.ClientID) }
func (a Auto) String() string  { return fmt.Sprintf("auto(%s, floor=%d)", a.Category, a.Floor) }

// RequestFromConfig builds the request for tool from the client_id section
// of cfg. Fixed mode without a configured ID fails with ErrMissingClientID;
// there is no fallback to auto mode.
//
// In fixed mode the tool name is informational only and need not map onto
// a category.
func RequestFromConfig(cfg *config.Config, tool string) (Request, error) {
	if cfg.ClientID.IsFixed() {
		if cfg.ClientID.Fixed == nil {
			return nil, errors.NewAllocationError("fixed mode selected without a client id", errors.ErrMissingClientID)
		}
		return Fixed{ClientID: *cfg.ClientID.Fixed, Tool: tool}, nil
	}

	category, err := ParseTool(tool)
	if err != nil {
		return nil, errors.NewAllocationError("cannot build client id request", err)
	}
	return Auto{Category: category, Floor: cfg.ClientID.Start, Tool: tool}, nil
}

// Acquire obtains a client ID for req. Fixed requests never touch the
// lock store.
func (a *Allocator) Acquire(ctx context.Context, req Request) (*Allocation, error) {
	switch r := req.(type) {
	case Fixed:
		if r.ClientID < 0 {
			err := errors.NewValidationError("client id must be non-negative").
				WithField("client_id.fixed").WithValue(r.ClientID)
			a.metrics.failed("", failureReason(err))
			return nil, err
		}
		category, _ := ParseTool(r.Tool)
		a.metrics.allocated(category, ModeFixed)
		a.logger.WithTool(r.Tool).WithClientID(r.ClientID).Info("using fixed client id")
		return newAllocation(r.ClientID, ModeFixed, category, r.Tool, nil), nil

	case Auto:
		tool := r.Tool
		if tool == "" {
			tool = string(r.Category)
		}
		return a.allocate(ctx, r.Category, r.Floor, tool)

	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported client id request %T", req))
	}
}
