package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/castlegate/visitbooker/internal/services/booking/domain"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestLoadRuleDescriptors(t *testing.T) {
	path := writeRulesFile(t, `{
		"HEI": [
			{"type": "interval", "parameters": {"intervalDays": "3"}},
			{"type": "monthly_cap", "parameters": {"maxPerMonth": "2"}}
		],
		"BXI": [
			{"type": "monthly_cap", "parameters": {"maxPerMonth": "4"}}
		]
	}`)

	descriptors, err := LoadRuleDescriptors(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(descriptors["HEI"]) != 2 || len(descriptors["BXI"]) != 1 {
		t.Fatalf("descriptors = %+v", descriptors)
	}
	if descriptors["HEI"][0].Type != domain.RuleTypeInterval {
		t.Fatalf("first HEI rule = %q, want interval", descriptors["HEI"][0].Type)
	}
	if descriptors["BXI"][0].Parameters["maxPerMonth"] != "4" {
		t.Fatalf("BXI parameters = %v", descriptors["BXI"][0].Parameters)
	}
}

func TestLoadRuleDescriptorsEmptyPath(t *testing.T) {
	descriptors, err := LoadRuleDescriptors("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if descriptors != nil {
		t.Fatalf("descriptors = %v, want nil", descriptors)
	}
}

func TestLoadRuleDescriptorsMalformedFile(t *testing.T) {
	path := writeRulesFile(t, `{"HEI": [{"type":`)

	if _, err := LoadRuleDescriptors(path); err == nil {
		t.Fatal("malformed rules file loaded successfully")
	}
}

func TestLoadRuleDescriptorsMissingFile(t *testing.T) {
	if _, err := LoadRuleDescriptors(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing rules file loaded successfully")
	}
}

func TestNewRuntimeRejectsUnknownRuleType(t *testing.T) {
	path := writeRulesFile(t, `{"HEI": [{"type": "blackout_window"}]}`)

	_, err := NewRuntime(RuntimeConfig{
		DBPath:    filepath.Join(t.TempDir(), "booking.db"),
		RulesPath: path,
	})
	if err == nil {
		t.Fatal("runtime with an unknown rule type started")
	}
}
