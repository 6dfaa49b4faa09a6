package fsmlog

import (
	"strings"

	"github.com/statorio/stator/pkg/fsm"
)

// FilterContext returns a copy of the mapping with the excluded dotted
// paths removed. A trailing ".*" removes every descendant of the path;
// a parent emptied by filtering is dropped with it. Embedded context
// DTOs are converted to mappings and filtered in place. The input is
// never mutated.
func FilterContext(context map[string]interface{}, excluded []string) map[string]interface{} {
	if context == nil {
		return nil
	}
	return filterLevel(context, "", excluded)
}

func filterLevel(m map[string]interface{}, prefix string, excluded []string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if pathExcluded(path, excluded) {
			continue
		}

		if dto, ok := value.(fsm.ContextDTO); ok {
			value = dto.ToMap()
		}
		if child, ok := value.(map[string]interface{}); ok {
			filtered := filterLevel(child, path, excluded)
			if len(filtered) == 0 && len(child) > 0 {
				continue
			}
			out[key] = filtered
			continue
		}
		out[key] = value
	}
	return out
}

func pathExcluded(path string, excluded []string) bool {
	for _, pattern := range excluded {
		if pattern == path {
			return true
		}
		if strings.HasSuffix(pattern, ".*") && strings.HasPrefix(path, pattern[:len(pattern)-1]) {
			return true
		}
	}
	return false
}
