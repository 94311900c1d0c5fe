// Package syncer moves a user's state between the local store and the
// hosted remote store. Sync is manual: Push bulk-upserts local state, Pull
// replaces local state with the remote copy. An optional subscription feeds
// remote record changes back into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/state"
)

// ErrRemote marks failures of the remote store. Local state is never rolled
// back when it is returned.
var ErrRemote = errors.New("remote store unavailable")

var ErrInvalidMode = errors.New("invalid sync mode")

type Mode string

const (
	ModePush Mode = "push"
	ModePull Mode = "pull"
	ModeFull Mode = "full"
)

// ParseMode accepts push, pull or full. Empty means full.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeFull, nil
	case ModePush, ModePull, ModeFull:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Result summarizes one sync run.
type Result struct {
	Mode    Mode `json:"mode"`
	Pushed  int  `json:"pushed"`
	Pulled  int  `json:"pulled"`
	Goals   int  `json:"goals"`
	Removed int  `json:"removed_goals,omitempty"`
}

type Service struct {
	remote remote.Records
	logger *log.Logger
	group  singleflight.Group

	mu    sync.Mutex
	watch map[string]*watcher
}

type watcher struct{ cancel context.CancelFunc }

func New(r remote.Records, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		remote: r,
		logger: logger.WithComponent(log.ComponentSync),
		watch:  map[string]*watcher{},
	}
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemote, op, err)
}

// Run executes mode for userID against store. Concurrent calls for the same
// user and mode share one in-flight run and its result.
func (s *Service) Run(ctx context.Context, store *state.Store, userID string, mode Mode) (Result, error) {
	key := userID + "/" + string(mode)
	v, err, shared := s.group.Do(key, func() (any, error) {
		switch mode {
		case ModePush:
			return s.Push(ctx, store, userID)
		case ModePull:
			return s.Pull(ctx, store, userID)
		case ModeFull:
			return s.Sync(ctx, store, userID)
		}
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight sync", log.FieldUserID, userID, log.FieldOperation, string(mode))
	}
	res, _ := v.(Result)
	return res, err
}

// Push upserts every local record, the settings row and the goals, and
// deletes remote goals that no longer exist locally. Remote records that
// are unknown locally are kept.
func (s *Service) Push(ctx context.Context, store *state.Store, userID string) (Result, error) {
	snap := store.Snapshot()
	res := Result{Mode: ModePush, Pushed: len(snap.Records), Goals: len(snap.Goals)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(snap.Records) == 0 {
			return nil
		}
		if err := s.remote.UpsertRecords(gctx, userID, snap.Records); err != nil {
			return remoteErr("upsert records", err)
		}
		return nil
	})
	g.Go(func() error {
		settings := remote.Settings{Tags: snap.Tags, Budget: snap.Budget}
		if err := s.remote.SaveSettings(gctx, userID, settings); err != nil {
			return remoteErr("save settings", err)
		}
		return nil
	})
	g.Go(func() error {
		existing, err := s.remote.FetchGoals(gctx, userID)
		if err != nil {
			return remoteErr("fetch goals", err)
		}
		if len(snap.Goals) > 0 {
			if err := s.remote.UpsertGoals(gctx, userID, snap.Goals); err != nil {
				return remoteErr("upsert goals", err)
			}
		}
		stale := staleGoals(existing, snap.Goals)
		if len(stale) == 0 {
			return nil
		}
		if err := s.remote.DeleteGoals(gctx, userID, stale); err != nil {
			return remoteErr("delete goals", err)
		}
		res.Removed = len(stale)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Push failed", log.FieldUserID, userID, log.FieldError, err)
		return Result{}, err
	}
	s.logger.InfoContext(ctx, "Pushed local state",
		log.FieldUserID, userID,
		"records", res.Pushed,
		"goals", res.Goals,
		"removed_goals", res.Removed)
	return res, nil
}

func staleGoals(remoteGoals, local []core.Goal) []string {
	keep := make(map[string]bool, len(local))
	for _, g := range local {
		keep[g.ID] = true
	}
	var out []string
	for _, g := range remoteGoals {
		if !keep[g.ID] {
			out = append(out, g.ID)
		}
	}
	return out
}

// Pull replaces local records and goals with the remote copy. The remote
// settings replace tags and budget when the user has saved them; the active
// month is kept.
func (s *Service) Pull(ctx context.Context, store *state.Store, userID string) (Result, error) {
	var (
		records  []core.Tx
		goals    []core.Goal
		settings remote.Settings
		found    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, err = s.remote.FetchRecords(gctx, userID); err != nil {
			return remoteErr("fetch records", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if goals, err = s.remote.FetchGoals(gctx, userID); err != nil {
			return remoteErr("fetch goals", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		settings, err = s.remote.LoadSettings(gctx, userID)
		switch {
		case errors.Is(err, remote.ErrNotFound):
			return nil
		case err != nil:
			return remoteErr("load settings", err)
		}
		found = true
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Pull failed", log.FieldUserID, userID, log.FieldError, err)
		return Result{}, err
	}
	accounts := store.Accounts()
	for _, tx := range records {
		if err := accounts.Check(tx); err != nil {
			err = remoteErr("fetch records", fmt.Errorf("%w: %s: %v", remote.ErrMalformedRow, tx.ID, err))
			s.logger.ErrorContext(ctx, "Pull failed", log.FieldUserID, userID, log.FieldError, err)
			return Result{}, err
		}
	}

	next := store.Snapshot()
	next.Records = records
	next.Goals = goals
	if found {
		if len(settings.Tags) > 0 {
			next.Tags = settings.Tags
		}
		next.Budget = settings.Budget
	}
	if _, err := store.Dispatch(ctx, state.LoadSnapshot{State: next}); err != nil {
		return Result{}, fmt.Errorf("load pulled state: %w", err)
	}

	s.logger.InfoContext(ctx, "Pulled remote state",
		log.FieldUserID, userID,
		"records", len(records),
		"goals", len(goals))
	return Result{Mode: ModePull, Pulled: len(records), Goals: len(goals)}, nil
}

// Sync pushes then pulls.
func (s *Service) Sync(ctx context.Context, store *state.Store, userID string) (Result, error) {
	pushed, err := s.Push(ctx, store, userID)
	if err != nil {
		return Result{}, err
	}
	pulled, err := s.Pull(ctx, store, userID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Mode:    ModeFull,
		Pushed:  pushed.Pushed,
		Pulled:  pulled.Pulled,
		Goals:   pulled.Goals,
		Removed: pushed.Removed,
	}, nil
}

// DeleteRemote removes records from the remote store after a local delete.
func (s *Service) DeleteRemote(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.remote.DeleteRecords(ctx, userID, ids); err != nil {
		s.logger.WarnContext(ctx, "Remote delete failed",
			log.FieldUserID, userID,
			log.FieldCount, len(ids),
			log.FieldError, err)
		return remoteErr("delete records", err)
	}
	return nil
}

// Apply maps a remote change onto the local store.
func (s *Service) Apply(ctx context.Context, store *state.Store, c remote.Change) error {
	a := state.ApplyRemoteChange{ID: c.ID, Record: c.Record}
	switch c.Op {
	case remote.OpInsert, remote.OpUpdate:
		a.Op = state.RemoteUpsert
	case remote.OpDelete:
		a.Op = state.RemoteDelete
	default:
		return fmt.Errorf("unknown change op %q", c.Op)
	}
	_, err := store.Dispatch(ctx, a)
	return err
}

// Watch starts the realtime subscription for userID in the background.
// Watching an already watched user is a no-op. The subscription ends on
// Unwatch, Close, or when ctx is done.
func (s *Service) Watch(ctx context.Context, store *state.Store, userID string) {
	s.mu.Lock()
	if _, ok := s.watch[userID]; ok {
		s.mu.Unlock()
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel}
	s.watch[userID] = w
	s.mu.Unlock()

	go func() {
		defer s.release(userID, w)
		err := s.remote.Subscribe(wctx, userID, func(c remote.Change) {
			if err := s.Apply(wctx, store, c); err != nil {
				s.logger.WarnContext(wctx, "Dropped remote change",
					log.FieldUserID, userID,
					log.FieldRecordID, c.ID,
					log.FieldError, err)
			}
		})
		if err != nil && wctx.Err() == nil {
			s.logger.WarnContext(wctx, "Realtime subscription ended", log.FieldUserID, userID, log.FieldError, err)
		}
	}()
}

func (s *Service) Unwatch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watch[userID]; ok {
		w.cancel()
		delete(s.watch, userID)
	}
}

// release drops w if it is still the active watcher of userID.
func (s *Service) release(userID string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.cancel()
	if s.watch[userID] == w {
		delete(s.watch, userID)
	}
}

func (s *Service) Watching(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watch[userID]
	return ok
}

// Close stops every subscription.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.watch {
		w.cancel()
		delete(s.watch, id)
	}
}
