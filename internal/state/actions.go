package state

import "fintrack/internal/core"

// Action is a state transition request handled by Reducer.Reduce.
type Action interface {
	action()
}

type (
	// AddRecord prepends a new income or expense record.
	AddRecord struct{ Tx core.Tx }

	// AddTransfer prepends both legs derived from Spec.
	AddTransfer struct{ Spec core.TransferSpec }

	// RemoveRecords removes exactly the given ids.
	RemoveRecords struct{ IDs []string }

	// ReplaceRecords swaps the whole record list, as after a pull.
	ReplaceRecords struct{ Records []core.Tx }

	SetMonth  struct{ Month string }
	SetBudget struct{ Budget core.Budget }

	AddCategory       struct{ Name string }
	AddSubcategory    struct{ Category, Name string }
	RenameCategory    struct{ From, To string }
	RenameSubcategory struct{ Category, From, To string }

	// SaveGoal inserts a goal or replaces the one with the same id.
	SaveGoal       struct{ Goal core.Goal }
	ContributeGoal struct {
		ID     string
		Amount float64
	}
	DeleteGoal struct{ ID string }

	// ApplyRemoteChange merges one change notification from the remote
	// store.
	ApplyRemoteChange struct {
		Op     RemoteOp
		Record core.Tx
		ID     string
	}

	// LoadSnapshot replaces the whole state.
	LoadSnapshot struct{ State State }
)

// RemoteOp is the kind of a remote change notification.
type RemoteOp string

const (
	RemoteUpsert RemoteOp = "upsert"
	RemoteDelete RemoteOp = "delete"
)

func (AddRecord) action()         {}
func (AddTransfer) action()       {}
func (RemoveRecords) action()     {}
func (ReplaceRecords) action()    {}
func (SetMonth) action()          {}
func (SetBudget) action()         {}
func (AddCategory) action()       {}
func (AddSubcategory) action()    {}
func (RenameCategory) action()    {}
func (RenameSubcategory) action() {}
func (SaveGoal) action()          {}
func (ContributeGoal) action()    {}
func (DeleteGoal) action()        {}
func (ApplyRemoteChange) action() {}
func (LoadSnapshot) action()      {}
