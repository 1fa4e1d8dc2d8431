package clientid

import "sync"

// Mode records how an allocation was obtained.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeFixed Mode = "fixed"
)

// Allocation is a client ID held by this process.
type Allocation struct {
	ClientID int
	Mode     Mode
	Category Category
	Tool     string

	once    sync.Once
	release func() error
}

func newAllocation(id int, mode Mode, category Category, tool string, release func() error) *Allocation {
	return &Allocation{
		ClientID: id,
		Mode:     mode,
		Category: category,
		Tool:     tool,
		release:  release,
	}
}

// Release gives the ID back. Only the first call does any work; later
// calls return nil.
func (a *Allocation) Release() error {
	if a == nil {
		return nil
	}
	var err error
	a.once.Do(func() {
		if a.release != nil {
			err = a.release()
		}
	})
	return err
}
