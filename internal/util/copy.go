package util

// DeepCopy clones a YAML-shaped value: maps keyed by strings, maps keyed by
// arbitrary values (as yaml.v3 produces for non-string keys), slices, and
// scalars. Scalars are returned as-is. Values of other kinds are returned
// unchanged, so callers must not hand in mutable structs they intend to keep.
func DeepCopy(src interface{}) interface{} {
	switch v := src.(type) {
	case map[string]interface{}:
		cpy := make(map[string]interface{}, len(v))
		for key, value := range v {
			cpy[key] = DeepCopy(value)
		}
		return cpy
	case map[interface{}]interface{}:
		cpy := make(map[interface{}]interface{}, len(v))
		for key, value := range v {
			cpy[DeepCopy(key)] = DeepCopy(value)
		}
		return cpy
	case []interface{}:
		cpy := make([]interface{}, len(v))
		for i, value := range v {
			cpy[i] = DeepCopy(value)
		}
		return cpy
	case []string:
		cpy := make([]string, len(v))
		copy(cpy, v)
		return cpy
	default:
		return v
	}
}

// DeepCopyStringMap is a convenience wrapper for the common fact-map case.
// A nil input yields an empty, non-nil map.
func DeepCopyStringMap(src map[string]interface{}) map[string]interface{} {
	cpy := make(map[string]interface{}, len(src))
	for key, value := range src {
		cpy[key] = DeepCopy(value)
	}
	return cpy
}

// Dedupe returns the list with duplicates removed, keeping the first
// occurrence and preserving order.
func Dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, item := range list {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// MergeMaps returns a new map holding base overlaid with overlay; overlay
// entries win on key conflict. Neither input is mutated.
func MergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for key, value := range base {
		merged[key] = DeepCopy(value)
	}
	for key, value := range overlay {
		merged[key] = DeepCopy(value)
	}
	return merged
}
