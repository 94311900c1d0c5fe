package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
)

type fakePersister struct {
	mu    sync.Mutex
	blobs map[string]map[string][]byte
	saves int
	err   error
}

func newFakePersister() *fakePersister {
	return &fakePersister{blobs: map[string]map[string][]byte{}}
}

func (f *fakePersister) SaveBlobs(_ context.Context, ns string, blobs map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	if f.blobs[ns] == nil {
		f.blobs[ns] = map[string][]byte{}
	}
	for k, v := range blobs {
		f.blobs[ns][k] = v
	}
	return nil
}

func (f *fakePersister) LoadBlobs(_ context.Context, ns string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]byte{}
	for k, v := range f.blobs[ns] {
		out[k] = v
	}
	return out, nil
}

type fakeNotifier struct {
	changes []RecordChange
}

func (f *fakeNotifier) PublishRecordChange(_ context.Context, c RecordChange) error {
	f.changes = append(f.changes, c)
	return nil
}

func openStore(t *testing.T, p Persister, n Notifier) *Store {
	t.Helper()
	st, err := Open(context.Background(), "user-1", Options{
		Accounts:  core.DefaultAccounts(),
		Persister: p,
		Notifier:  n,
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestStorePersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	p := newFakePersister()
	st := openStore(t, p, nil)

	if _, err := st.Dispatch(ctx, AddRecord{Tx: expense("a", 4.5)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := st.Dispatch(ctx, SetBudget{Budget: core.Budget{Essentials: 900}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := st.Dispatch(ctx, SetMonth{Month: "2025-01"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if p.saves != 3 || st.Version() != 3 {
		t.Fatalf("saves = %d, version = %d", p.saves, st.Version())
	}
	if string(p.blobs["user-1"][KeyMonth]) != "2025-01" {
		t.Fatalf("month blob = %q", p.blobs["user-1"][KeyMonth])
	}

	reopened := openStore(t, p, nil)
	snap := reopened.Snapshot()
	if len(snap.Records) != 1 || snap.Records[0].Amount != -4.5 {
		t.Fatalf("records after reopen = %+v", snap.Records)
	}
	if snap.Budget.Essentials != 900 || snap.Month != "2025-01" {
		t.Fatalf("state after reopen = %+v", snap)
	}
}

func TestStoreValidationErrorDoesNotPersist(t *testing.T) {
	p := newFakePersister()
	st := openStore(t, p, nil)
	if _, err := st.Dispatch(context.Background(), AddRecord{Tx: expense("a", 0)}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v", err)
	}
	if p.saves != 0 || st.Version() != 0 {
		t.Fatalf("saves = %d, version = %d", p.saves, st.Version())
	}
}

func TestStoreKeepsStateWhenPersistFails(t *testing.T) {
	p := newFakePersister()
	p.err = errors.New("disk full")
	st := openStore(t, p, nil)
	if _, err := st.Dispatch(context.Background(), AddRecord{Tx: expense("a", 1)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(st.Snapshot().Records) != 1 {
		t.Fatalf("state rolled back")
	}
}

func TestStoreCorruptBlobFallsBack(t *testing.T) {
	p := newFakePersister()
	p.blobs["user-1"] = map[string][]byte{
		KeyRecords: []byte("{not json"),
		KeyBudget:  []byte(`{"essentials":5}`),
	}
	snap := openStore(t, p, nil).Snapshot()
	if len(snap.Records) != 0 || snap.Budget.Essentials != 5 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStoreDeleteRecordsWithPairs(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	st := openStore(t, newFakePersister(), n)

	spec := core.TransferSpec{ID: "t", From: "Cash", To: "Checking", Date: "2025-03-01", Time: "10:00:00", Amount: 40}
	if _, err := st.Dispatch(ctx, AddTransfer{Spec: spec}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	removed, err := st.DeleteRecords(ctx, []string{"t-in"}, true)
	if err != nil {
		t.Fatalf("DeleteRecords: %v", err)
	}
	if len(removed) != 2 || len(st.Snapshot().Records) != 0 {
		t.Fatalf("removed = %v, left = %+v", removed, st.Snapshot().Records)
	}

	if len(n.changes) != 2 || n.changes[0].Op != ChangeUpsert || n.changes[1].Op != ChangeDelete {
		t.Fatalf("changes = %+v", n.changes)
	}
	if n.changes[1].Namespace != "user-1" || len(n.changes[1].IDs) != 2 {
		t.Fatalf("delete change = %+v", n.changes[1])
	}
}

func TestRegistryReusesStores(t *testing.T) {
	r := NewRegistry(Options{Accounts: core.DefaultAccounts(), Persister: newFakePersister()})
	a, err := r.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := r.Get(context.Background(), LocalNamespace)
	if a != b || a.Namespace() != LocalNamespace {
		t.Fatalf("expected the same local store")
	}
}
