package config

// MergeMaps merges maps into a new map. Later maps take precedence: scalar
// conflicts resolve to the later value and nested maps are merged key by key.
// The inputs are not modified.
func MergeMaps(maps []map[string]any) map[string]any {
	target := make(map[string]any)
	for _, src := range maps {
		mergeInto(target, src)
	}
	return target
}

func mergeInto(target, src map[string]any) {
	for key, value := range src {
		incoming, incomingIsMap := value.(map[string]any)
		current, currentIsMap := target[key].(map[string]any)
		switch {
		case incomingIsMap && currentIsMap:
			mergeInto(current, incoming)
		case incomingIsMap:
			target[key] = copyMap(incoming)
		default:
			target[key] = value
		}
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
