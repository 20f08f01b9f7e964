package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/caseflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RunID", id.NewRunID, "run_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"RunID", id.NewRunID, id.ParseRunID},
		{"CheckpointID", id.NewCheckpointID, id.ParseCheckpointID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseRunID(id.NewCheckpointID().String()); err == nil {
		t.Error("ParseRunID accepted a checkpoint id")
	}
	if _, err := id.ParseCheckpointID(id.NewRunID().String()); err == nil {
		t.Error("ParseCheckpointID accepted a run id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestJSONField(t *testing.T) {
	type doc struct {
		ID id.ID `json:"id"`
	}
	original := doc{ID: id.NewCheckpointID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored doc
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.ID.String() != original.ID.String() {
		t.Errorf("mismatch: %q != %q", restored.ID, original.ID)
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewRunID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilScanned id.ID
	if err := nilScanned.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !nilScanned.IsNil() {
		t.Error("expected nil after scanning NULL")
	}
}
