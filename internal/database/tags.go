package database

import "strings"

// ParseTags splits a comma separated tag list into lower-cased, trimmed,
// de-duplicated names, preserving first-seen order.
func ParseTags(raw string) []string {
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	return tags
}
