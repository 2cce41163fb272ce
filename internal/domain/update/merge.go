package update

// MergeRecord deep-merges overlay on top of base and returns a new record.
// Nested mappings are merged key by key, any other overlay value replaces
// the base value. Neither input is modified.
func MergeRecord(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))

	for k, v := range base {
		merged[k] = copyValue(v)
	}

	for k, v := range overlay {
		baseMap, baseIsMap := merged[k].(map[string]any)
		overlayMap, overlayIsMap := v.(map[string]any)

		if baseIsMap && overlayIsMap {
			merged[k] = MergeRecord(baseMap, overlayMap)

			continue
		}

		merged[k] = copyValue(v)
	}

	return merged
}

func copyValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return MergeRecord(m, nil)
	}

	return v
}
