package homepage

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Load reads a Homepage services.yaml or bookmarks.yaml and returns its
// entries as drafts, in file order.
func Load(path string) ([]Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read homepage file: %w", err)
	}
	return Parse(data)
}

// Parse decodes Homepage YAML into drafts.
func Parse(data []byte) ([]Draft, error) {
	// Homepage template variables ({{HOMEPAGE_VAR_...}}) are resolved by
	// Homepage itself; an entry whose href was a variable is skipped.
	data = stripTemplateVariables(data)

	var groups []map[string][]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse homepage yaml: %w", err)
	}

	drafts, err := mapGroups(groups)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("no bookmarks found in homepage yaml")
	}
	return drafts, nil
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
