package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"fintrack/internal/log"
)

// notification is the trigger payload published on NotifyChannel.
type notification struct {
	Op     ChangeOp        `json:"op"`
	UserID string          `json:"user_id"`
	ID     string          `json:"id"`
	Row    json.RawMessage `json:"row"`
}

// DecodeNotification validates a trigger payload. ok is false when the
// payload belongs to another user.
func DecodeNotification(payload []byte, userID string) (c Change, ok bool, err error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Change{}, false, fmt.Errorf("%w: notification: %v", ErrMalformedRow, err)
	}
	if n.UserID != userID {
		return Change{}, false, nil
	}
	switch n.Op {
	case OpDelete:
		if n.ID == "" {
			return Change{}, false, fmt.Errorf("%w: delete without id", ErrMalformedRow)
		}
		return Change{Op: OpDelete, ID: n.ID}, true, nil
	case OpInsert, OpUpdate:
		var r Row
		if err := json.Unmarshal(n.Row, &r); err != nil {
			return Change{}, false, fmt.Errorf("%w: row: %v", ErrMalformedRow, err)
		}
		tx, err := ValidateRow(r)
		if err != nil {
			return Change{}, false, err
		}
		return Change{Op: n.Op, Record: tx, ID: tx.ID}, true, nil
	default:
		return Change{}, false, fmt.Errorf("%w: op %q", ErrMalformedRow, n.Op)
	}
}

// Subscribe listens for records-table changes until ctx is done. The
// listener reconnects on its own; notifications lost while disconnected
// are not replayed.
func (p *Postgres) Subscribe(ctx context.Context, userID string, fn func(Change)) error {
	logger := p.logger.With(log.FieldUserID, userID)
	listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("Listener event", "event", int(ev), log.FieldError, err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	logger.Info("Subscribed to record changes")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// reconnected
				continue
			}
			change, ok, err := DecodeNotification([]byte(n.Extra), userID)
			if err != nil {
				logger.Warn("Dropped malformed change notification", log.FieldError, err)
				continue
			}
			if ok {
				fn(change)
			}
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				logger.Warn("Listener ping failed", log.FieldError, err)
			}
		}
	}
}
