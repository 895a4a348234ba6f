package source

// Flatten turns a nested JSON object into a single-level record whose keys
// are dotted paths ("teams.away.score"). Arrays are kept as JSON text.
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]any:
			if len(x) == 0 {
				continue
			}
			flattenInto(out, key, x)
		case []any:
			text, err := json.MarshalToString(x)
			if err != nil {
				continue
			}
			out[key] = text
		default:
			out[key] = v
		}
	}
}
