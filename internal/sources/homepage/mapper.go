package homepage

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// mapGroups turns decoded groups into drafts. Entries without a usable
// href are skipped; a URL seen twice keeps its first title.
func mapGroups(groups []map[string][]map[string]yaml.Node) ([]Draft, error) {
	var drafts []Draft
	seen := make(map[string]bool)

	for _, group := range groups {
		for _, groupName := range sortedKeys(group) {
			for _, entry := range group[groupName] {
				for _, name := range sortedKeys(entry) {
					node := entry[name]
					href, err := entryHref(&node)
					if err != nil {
						return nil, fmt.Errorf("%s/%s: %w", groupName, name, err)
					}
					normalized, err := domain.NormalizeURL(href)
					if err != nil || seen[normalized] {
						continue
					}
					seen[normalized] = true
					drafts = append(drafts, Draft{
						URL:   normalized,
						Title: domain.NormalizeTitle(name, normalized),
						Group: groupName,
					})
				}
			}
		}
	}
	return drafts, nil
}

// entryHref reads the href of a services entry (a mapping) or of a
// bookmarks entry (a sequence whose first element holds the properties).
func entryHref(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var props ServiceProps
		if err := node.Decode(&props); err != nil {
			return "", err
		}
		return props.Href, nil
	case yaml.SequenceNode:
		var entries []BookmarkEntry
		if err := node.Decode(&entries); err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", nil
		}
		return entries[0].Href, nil
	default:
		return "", nil
	}
}

// Single-key maps are the norm; sorting only matters for hand-written
// files with several keys per item.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
