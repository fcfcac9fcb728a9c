package google

import (
	"context"
	"os"
	"testing"

	"budgetlens/internal/core"
)

func TestIntegration_AppendAndList(t *testing.T) {
	id := os.Getenv("TEST_GOOGLE_SPREADSHEET_ID")
	if id == "" {
		t.Skip("TEST_GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	ctx := context.Background()
	c, err := New(ctx, Config{SpreadsheetID: id, SheetName: os.Getenv("TEST_GOOGLE_SHEET_NAME"), Credentials: CredentialsFromEnv()}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	before, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := c.Add(ctx, core.Expense{Date: "2024-01-05", Category: "Integration", Amount: core.CoerceAmount("1.23")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	after, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("expected one more entry: %d -> %d", len(before), len(after))
	}
}
