//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"fintrack/internal/core"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_LedgerMirror(t *testing.T) {
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	ctx := context.Background()
	client, err := NewFromEnv(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ns := fmt.Sprintf("integration-%d", time.Now().UnixNano())
	tx := core.Tx{
		ID: "it-1", Type: core.Expense, Account: "Cash", Date: time.Now().Format(core.DateLayout),
		Time: "12:00:00", Amount: -1.23, Category: "Test", Subcategory: "Integration",
	}
	if err := client.Upsert(ctx, ns, []core.Tx{tx}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	t.Cleanup(func() { _ = client.Replace(ctx, ns, nil) })

	got, err := client.List(ctx, ns)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != tx.ID {
		t.Fatalf("mirrored rows = %+v", got)
	}
}
