package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// LocalNamespace holds the state of a signed-out session.
const LocalNamespace = "local"

// Persister stores the serialized state blobs of one namespace.
type Persister interface {
	SaveBlobs(ctx context.Context, namespace string, blobs map[string][]byte) error
	LoadBlobs(ctx context.Context, namespace string) (map[string][]byte, error)
}

// ChangeOp is the kind of a record change.
type ChangeOp string

const (
	ChangeUpsert  ChangeOp = "upsert"
	ChangeDelete  ChangeOp = "delete"
	ChangeReplace ChangeOp = "replace"
)

// RecordChange describes records touched by one dispatched action.
type RecordChange struct {
	Namespace string
	Op        ChangeOp
	Records   []core.Tx
	IDs       []string
}

// Notifier receives record changes after they are persisted.
type Notifier interface {
	PublishRecordChange(ctx context.Context, change RecordChange) error
}

// Options configures a Store.
type Options struct {
	Accounts  core.Accounts
	Persister Persister
	Notifier  Notifier
	Logger    *log.Logger
	Now       func() time.Time
}

// Store owns the state of one namespace. Every dispatched mutation is
// written to the Persister before Dispatch returns.
type Store struct {
	mu        sync.RWMutex
	namespace string
	state     State
	version   uint64
	reducer   Reducer
	persister Persister
	notifier  Notifier
	logger    *log.Logger
}

// Open loads the namespace from the persister, falling back to a fresh
// state for missing or unreadable blobs.
func Open(ctx context.Context, namespace string, opts Options) (*Store, error) {
	if opts.Persister == nil {
		return nil, fmt.Errorf("state: persister is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if namespace == "" {
		namespace = LocalNamespace
	}

	s := &Store{
		namespace: namespace,
		reducer:   Reducer{Accounts: opts.Accounts},
		persister: opts.Persister,
		notifier:  opts.Notifier,
		logger: opts.Logger.WithComponent(log.ComponentState).
			With(log.FieldNamespace, namespace),
	}

	blobs, err := opts.Persister.LoadBlobs(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", namespace, err)
	}
	st, err := Decode(blobs, Initial(opts.Now()))
	if err != nil {
		s.logger.Warn("Discarded unreadable stored state", log.FieldError, err)
	}
	s.state = st
	return s, nil
}

// NewID returns a fresh record or goal identifier.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) Namespace() string { return s.namespace }

func (s *Store) Accounts() core.Accounts { return s.reducer.Accounts }

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Version increases on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Dispatch applies a and mirrors the touched blobs to the persister.
// Validation errors leave the state untouched. Persistence and
// notification failures are logged; the in-memory state is kept.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	out, _, err := s.dispatch(ctx, a)
	return out, err
}

func (s *Store) dispatch(ctx context.Context, a Action) (State, Effect, error) {
	s.mu.Lock()
	next, eff, err := s.reducer.Reduce(s.state, a)
	if err != nil {
		out := s.state.Clone()
		s.mu.Unlock()
		return out, Effect{}, err
	}
	s.state = next
	s.version++
	s.persist(ctx, eff.Changed)
	out := s.state.Clone()
	s.mu.Unlock()

	s.notify(ctx, eff, out.Records)
	return out, eff, nil
}

func (s *Store) persist(ctx context.Context, changed Changed) {
	if changed == 0 {
		return
	}
	blobs, err := Encode(s.state, changed)
	if err == nil {
		err = s.persister.SaveBlobs(ctx, s.namespace, blobs)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist state",
			log.FieldOperation, log.OpPersist,
			log.FieldError, err)
	}
}

func (s *Store) notify(ctx context.Context, eff Effect, records []core.Tx) {
	if s.notifier == nil {
		return
	}
	var changes []RecordChange
	switch {
	case eff.Replaced && eff.Changed.Has(ChangedRecords):
		changes = append(changes, RecordChange{Op: ChangeReplace, Records: records})
	default:
		if len(eff.Upserted) > 0 {
			changes = append(changes, RecordChange{Op: ChangeUpsert, Records: eff.Upserted})
		}
		if len(eff.Removed) > 0 {
			changes = append(changes, RecordChange{Op: ChangeDelete, IDs: eff.Removed})
		}
	}
	for _, c := range changes {
		c.Namespace = s.namespace
		if err := s.notifier.PublishRecordChange(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish record change",
				"op", string(c.Op),
				log.FieldError, err)
		}
	}
}

// DeleteRecords removes ids. With pairs set, removing one leg of a
// transfer removes the other leg too. It returns the removed ids.
func (s *Store) DeleteRecords(ctx context.Context, ids []string, withPairs bool) ([]string, error) {
	if withPairs {
		ids = ExpandTransferPairs(s.Snapshot().Records, ids)
	}
	_, eff, err := s.dispatch(ctx, RemoveRecords{IDs: ids})
	if err != nil {
		return nil, err
	}
	return eff.Removed, nil
}

// ExpandTransferPairs adds the sibling leg of every transfer leg in ids.
func ExpandTransferPairs(records []core.Tx, ids []string) []string {
	want := setOf(ids)
	transfers := map[string]struct{}{}
	for _, tx := range records {
		if _, ok := want[tx.ID]; ok && tx.TransferID != "" {
			transfers[tx.TransferID] = struct{}{}
		}
	}
	out := append([]string(nil), ids...)
	for _, tx := range records {
		if _, ok := transfers[tx.TransferID]; !ok || tx.TransferID == "" {
			continue
		}
		if _, ok := want[tx.ID]; !ok {
			want[tx.ID] = struct{}{}
			out = append(out, tx.ID)
		}
	}
	return out
}

// Registry opens one Store per namespace on first use.
type Registry struct {
	mu     sync.Mutex
	opts   Options
	stores map[string]*Store
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, stores: map[string]*Store{}}
}

// Get returns the store of namespace, opening it if needed.
func (r *Registry) Get(ctx context.Context, namespace string) (*Store, error) {
	if namespace == "" {
		namespace = LocalNamespace
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stores[namespace]; ok {
		return st, nil
	}
	st, err := Open(ctx, namespace, r.opts)
	if err != nil {
		return nil, err
	}
	r.stores[namespace] = st
	return st, nil
}

// Accounts returns the account set shared by every store.
func (r *Registry) Accounts() core.Accounts { return r.opts.Accounts }
