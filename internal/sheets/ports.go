package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerMirror keeps a spreadsheet copy of each namespace's records,
	// keyed by record id.
	LedgerMirror interface {
		Upsert(ctx context.Context, namespace string, records []core.Tx) error
		Delete(ctx context.Context, namespace string, ids []string) error
		// Replace makes the namespace's rows exactly records.
		Replace(ctx context.Context, namespace string, records []core.Tx) error
	}

	// LedgerReader lists the mirrored records of a namespace.
	LedgerReader interface {
		List(ctx context.Context, namespace string) ([]core.Tx, error)
	}
)
