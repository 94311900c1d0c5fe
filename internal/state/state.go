// Package state holds the application state of one session and the pure
// transitions that mutate it.
package state

import (
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

var (
	ErrGoalNotFound    = errors.New("goal not found")
	ErrUnknownAction   = errors.New("unknown action")
	ErrDuplicateRecord = errors.New("record id already exists")
)

// State is everything a session edits. Records are most-recent first.
type State struct {
	Records []core.Tx     `json:"transactions"`
	Tags    core.Taxonomy `json:"tags"`
	Month   string        `json:"month"`
	Budget  core.Budget   `json:"budget"`
	Goals   []core.Goal   `json:"goals"`
}

// Initial returns the state of a fresh session.
func Initial(now time.Time) State {
	return State{
		Records: []core.Tx{},
		Tags:    core.DefaultTaxonomy(),
		Month:   core.CurrentMonth(now),
		Goals:   []core.Goal{},
	}
}

// Clone returns a copy sharing no slices or maps with s.
func (s State) Clone() State {
	out := s
	out.Records = append([]core.Tx(nil), s.Records...)
	out.Goals = append([]core.Goal(nil), s.Goals...)
	if s.Tags != nil {
		out.Tags = s.Tags.Clone()
	}
	return out
}

// Record returns the record with id.
func (s State) Record(id string) (core.Tx, bool) {
	for _, tx := range s.Records {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Tx{}, false
}

// Changed flags which persisted blobs a transition touched.
type Changed uint8

const (
	ChangedRecords Changed = 1 << iota
	ChangedTags
	ChangedMonth
	ChangedBudget
	ChangedGoals

	ChangedAll = ChangedRecords | ChangedTags | ChangedMonth | ChangedBudget | ChangedGoals
)

func (c Changed) Has(f Changed) bool { return c&f != 0 }

// Effect describes the outcome of a transition.
type Effect struct {
	Changed  Changed
	Upserted []core.Tx
	Removed  []string
	Replaced bool
}

// Reducer applies actions. It carries the configured account set used to
// validate records.
type Reducer struct {
	Accounts core.Accounts
}

// Reduce returns the state after applying a. s is never modified. On error
// the returned state is s.
func (r Reducer) Reduce(s State, a Action) (State, Effect, error) {
	next := s.Clone()
	var eff Effect

	switch a := a.(type) {
	case AddRecord:
		if err := r.checkRecord(a.Tx); err != nil {
			return s, Effect{}, err
		}
		if a.Tx.Type == core.Transfer {
			return s, Effect{}, fmt.Errorf("%w: use a transfer for account movements", core.ErrInvalidType)
		}
		if _, exists := s.Record(a.Tx.ID); exists {
			return s, Effect{}, fmt.Errorf("%w: %s", ErrDuplicateRecord, a.Tx.ID)
		}
		next.Records = prepend(next.Records, a.Tx)
		eff = Effect{Changed: ChangedRecords, Upserted: []core.Tx{a.Tx}}

	case AddTransfer:
		if err := a.Spec.Validate(); err != nil {
			return s, Effect{}, err
		}
		out, in := a.Spec.Legs()
		for _, leg := range []core.Tx{out, in} {
			if err := r.checkRecord(leg); err != nil {
				return s, Effect{}, err
			}
			if _, exists := s.Record(leg.ID); exists {
				return s, Effect{}, fmt.Errorf("%w: %s", ErrDuplicateRecord, leg.ID)
			}
		}
		next.Records = prepend(next.Records, out, in)
		eff = Effect{Changed: ChangedRecords, Upserted: []core.Tx{out, in}}

	case RemoveRecords:
		ids := setOf(a.IDs)
		kept := next.Records[:0]
		for _, tx := range next.Records {
			if _, ok := ids[tx.ID]; ok {
				eff.Removed = append(eff.Removed, tx.ID)
				continue
			}
			kept = append(kept, tx)
		}
		next.Records = kept
		eff.Changed = ChangedRecords

	case ReplaceRecords:
		next.Records = append([]core.Tx{}, a.Records...)
		eff = Effect{Changed: ChangedRecords, Replaced: true}

	case SetMonth:
		if err := core.ValidateMonth(a.Month); err != nil {
			return s, Effect{}, err
		}
		next.Month = a.Month
		eff.Changed = ChangedMonth

	case SetBudget:
		if err := a.Budget.Validate(); err != nil {
			return s, Effect{}, err
		}
		next.Budget = a.Budget
		eff.Changed = ChangedBudget

	case AddCategory:
		tags, err := next.Tags.AddCategory(a.Name)
		if err != nil {
			return s, Effect{}, err
		}
		next.Tags = tags
		eff.Changed = ChangedTags

	case AddSubcategory:
		tags, err := next.Tags.AddSubcategory(a.Category, a.Name)
		if err != nil {
			return s, Effect{}, err
		}
		next.Tags = tags
		eff.Changed = ChangedTags

	case RenameCategory:
		tags, err := next.Tags.RenameCategory(a.From, a.To)
		if err != nil {
			return s, Effect{}, err
		}
		next.Tags = tags
		eff.Changed = ChangedTags
		for i, tx := range next.Records {
			if tx.Category == a.From && a.From != a.To {
				next.Records[i].Category = a.To
				eff.Upserted = append(eff.Upserted, next.Records[i])
			}
		}
		if len(eff.Upserted) > 0 {
			eff.Changed |= ChangedRecords
		}

	case RenameSubcategory:
		tags, err := next.Tags.RenameSubcategory(a.Category, a.From, a.To)
		if err != nil {
			return s, Effect{}, err
		}
		next.Tags = tags
		eff.Changed = ChangedTags
		for i, tx := range next.Records {
			if tx.Category == a.Category && tx.Subcategory == a.From && a.From != a.To {
				next.Records[i].Subcategory = a.To
				eff.Upserted = append(eff.Upserted, next.Records[i])
			}
		}
		if len(eff.Upserted) > 0 {
			eff.Changed |= ChangedRecords
		}

	case SaveGoal:
		if err := a.Goal.Validate(); err != nil {
			return s, Effect{}, err
		}
		replaced := false
		for i, g := range next.Goals {
			if g.ID == a.Goal.ID {
				next.Goals[i] = a.Goal
				replaced = true
				break
			}
		}
		if !replaced {
			next.Goals = append(next.Goals, a.Goal)
		}
		eff.Changed = ChangedGoals

	case ContributeGoal:
		i := goalIndex(next.Goals, a.ID)
		if i < 0 {
			return s, Effect{}, ErrGoalNotFound
		}
		g, err := next.Goals[i].Contribute(a.Amount)
		if err != nil {
			return s, Effect{}, err
		}
		next.Goals[i] = g
		eff.Changed = ChangedGoals

	case DeleteGoal:
		i := goalIndex(next.Goals, a.ID)
		if i < 0 {
			return s, Effect{}, ErrGoalNotFound
		}
		next.Goals = append(next.Goals[:i], next.Goals[i+1:]...)
		eff.Changed = ChangedGoals

	case ApplyRemoteChange:
		switch a.Op {
		case RemoteDelete:
			return r.Reduce(s, RemoveRecords{IDs: []string{a.ID}})
		case RemoteUpsert:
			if err := r.checkRecord(a.Record); err != nil {
				return s, Effect{}, err
			}
			replaced := false
			for i, tx := range next.Records {
				if tx.ID == a.Record.ID {
					next.Records[i] = a.Record
					replaced = true
					break
				}
			}
			if !replaced {
				next.Records = prepend(next.Records, a.Record)
			}
			eff = Effect{Changed: ChangedRecords, Upserted: []core.Tx{a.Record}}
		default:
			return s, Effect{}, fmt.Errorf("%w: remote op %q", ErrUnknownAction, a.Op)
		}

	case LoadSnapshot:
		next = a.State.Clone()
		if next.Records == nil {
			next.Records = []core.Tx{}
		}
		if next.Goals == nil {
			next.Goals = []core.Goal{}
		}
		if next.Tags == nil {
			next.Tags = core.DefaultTaxonomy()
		}
		if next.Month == "" {
			next.Month = s.Month
		}
		eff = Effect{Changed: ChangedAll, Replaced: true}

	default:
		return s, Effect{}, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	return next, eff, nil
}

func (r Reducer) checkRecord(tx core.Tx) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	return r.Accounts.Check(tx)
}

func prepend(records []core.Tx, txs ...core.Tx) []core.Tx {
	out := make([]core.Tx, 0, len(records)+len(txs))
	out = append(out, txs...)
	return append(out, records...)
}

func goalIndex(goals []core.Goal, id string) int {
	for i, g := range goals {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func setOf(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
