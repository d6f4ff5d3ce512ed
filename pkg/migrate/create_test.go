package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationTemplates(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		wantUp   string
		wantDown string
	}{
		{
			name:     "Create Refunds Table",
			wantUp:   "CREATE TABLE IF NOT EXISTS refunds (",
			wantDown: "DROP TABLE IF EXISTS refunds;",
		},
		{
			name:     "add_cancel_note_to_orders",
			wantUp:   "ALTER TABLE orders ADD COLUMN IF NOT EXISTS cancel_note text NULL;",
			wantDown: "ALTER TABLE orders DROP COLUMN IF EXISTS cancel_note;",
		},
		{
			name:     "backfill product limits",
			wantUp:   "-- backfill_product_limits",
			wantDown: "-- rollback backfill_product_limits",
		},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path, err := createSQLMigration(dir, tc.name, now.Add(time.Duration(i)*time.Minute))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			body := string(b)
			if !strings.Contains(body, tc.wantUp) {
				t.Errorf("up section missing %q:\n%s", tc.wantUp, body)
			}
			if !strings.Contains(body, tc.wantDown) {
				t.Errorf("down section missing %q:\n%s", tc.wantDown, body)
			}
			if err := ValidateDir(dir); err != nil {
				t.Fatalf("generated migration invalid: %v", err)
			}
		})
	}
}

func TestCreateSQLMigrationStepsPastTakenVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "first", now)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := createSQLMigration(dir, "second", now)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if filepath.Base(first) != "20260901120000_first.sql" {
		t.Fatalf("unexpected first path %s", first)
	}
	if filepath.Base(second) != "20260901120001_second.sql" {
		t.Fatalf("unexpected second path %s", second)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateBodyRejects(t *testing.T) {
	cases := map[string]string{
		"down before up": "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
		"unbalanced":     "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
		"unguarded drop": "-- +goose Up\nSELECT 1;\n-- +goose Down\nDROP TABLE stores;\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if err := validateBody(body); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}
