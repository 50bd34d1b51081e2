package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/castlegate/visitbooker/internal/platform/errors"
	"github.com/castlegate/visitbooker/internal/services/booking/domain"
)

// ruleConfigEntry is one admission-rule descriptor as written in the rules
// configuration file.
type ruleConfigEntry struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters"`
}

// LoadRuleDescriptors reads the per-prison admission-rule configuration from
// a JSON file keyed by prison code. A missing path yields an empty
// configuration; a malformed file fails fast.
func LoadRuleDescriptors(path string) (map[string][]domain.RuleDescriptor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfiguration, fmt.Sprintf("read rules file %s", path), err)
	}

	var entries map[string][]ruleConfigEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(errors.CodeConfiguration, fmt.Sprintf("parse rules file %s", path), err)
	}

	descriptors := make(map[string][]domain.RuleDescriptor, len(entries))
	for prisonCode, ruleEntries := range entries {
		prisonCode = strings.TrimSpace(prisonCode)
		if prisonCode == "" {
			return nil, errors.New(errors.CodeRuleEmptyPrisonCode, "rules file contains an empty prison code key")
		}
		for _, entry := range ruleEntries {
			descriptors[prisonCode] = append(descriptors[prisonCode], domain.RuleDescriptor{
				Type:       domain.RuleType(entry.Type),
				Parameters: entry.Parameters,
			})
		}
	}
	return descriptors, nil
}
