// Package worker applies local record changes to the spreadsheet ledger
// mirror. Changes arrive over AMQP; a reconciliation pass rebuilds each
// namespace from the local blobs to recover from lost messages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/state"
)

// BlobSource is the read side of the local blob storage.
type BlobSource interface {
	Namespaces(ctx context.Context) ([]string, error)
	LoadBlobs(ctx context.Context, namespace string) (map[string][]byte, error)
}

// MirrorWorker mirrors record changes into a LedgerMirror.
type MirrorWorker struct {
	blobs  BlobSource
	mirror sheets.LedgerMirror
	logger *log.Logger
	now    func() time.Time
}

func NewMirrorWorker(blobs BlobSource, mirror sheets.LedgerMirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &MirrorWorker{
		blobs:  blobs,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// HandleRecordChange applies one change message to the mirror.
func (w *MirrorWorker) HandleRecordChange(ctx context.Context, msg *amqp.RecordChangeMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	w.logger.InfoContext(ctx, "Processing record change",
		log.FieldNamespace, msg.Namespace,
		log.FieldOperation, string(msg.Op),
		log.FieldCount, len(msg.Records)+len(msg.IDs))

	var err error
	switch msg.Op {
	case state.ChangeUpsert:
		err = w.mirror.Upsert(ctx, msg.Namespace, msg.Records)
	case state.ChangeDelete:
		err = w.mirror.Delete(ctx, msg.Namespace, msg.IDs)
	case state.ChangeReplace:
		err = w.mirror.Replace(ctx, msg.Namespace, msg.Records)
	default:
		return fmt.Errorf("unknown op %q", msg.Op)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror record change",
			log.FieldNamespace, msg.Namespace,
			log.FieldOperation, string(msg.Op),
			log.FieldError, err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("mirror %s: %w", msg.Op, err)
	}
	return nil
}

// ReconcileNamespace replaces the mirrored rows of namespace with the
// records currently stored locally.
func (w *MirrorWorker) ReconcileNamespace(ctx context.Context, namespace string) error {
	blobs, err := w.blobs.LoadBlobs(ctx, namespace)
	if err != nil {
		return fmt.Errorf("load blobs: %w", err)
	}
	s, err := state.Decode(blobs, state.Initial(w.now()))
	if err != nil {
		// Corrupt keys fall back to defaults; records may still be usable.
		w.logger.WarnContext(ctx, "Local state partially unreadable",
			log.FieldNamespace, namespace,
			log.FieldError, err)
	}
	if err := w.mirror.Replace(ctx, namespace, s.Records); err != nil {
		return fmt.Errorf("replace mirror: %w", err)
	}
	return nil
}

// StartupSyncCheck reconciles every stored namespace. Failures are logged
// per namespace and the pass continues.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	namespaces, err := w.blobs.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}
	if len(namespaces) == 0 {
		w.logger.InfoContext(ctx, "No local namespaces found on startup")
		return nil
	}

	successCount := 0
	errorCount := 0
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ReconcileNamespace(ctx, ns); err != nil {
			w.logger.ErrorContext(ctx, "Failed to reconcile namespace",
				log.FieldNamespace, ns,
				log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", len(namespaces),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

// RunPeriodic repeats StartupSyncCheck every interval until ctx ends.
func (w *MirrorWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.StartupSyncCheck(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic reconciliation failed", log.FieldError, err)
			}
		}
	}
}
