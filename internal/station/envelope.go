package station

// Envelope is one decoded JSON message from the station, tagged by "type".
type Envelope map[string]any

// MessageType returns the envelope's "type" field, or "unknown" when the
// field is absent or not a string.
func (e Envelope) MessageType() string {
	if t, ok := e["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// numField reads a top-level numeric field. JSON numbers decode as float64.
func (e Envelope) numField(key string) *float64 {
	v, ok := e[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

// strField reads a top-level string field.
func (e Envelope) strField(key string) *string {
	v, ok := e[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// numAt reads element i of a positional array, treating out-of-range
// indexes and non-numeric values as absent.
func numAt(arr []any, i int) *float64 {
	if i >= len(arr) {
		return nil
	}
	v, ok := arr[i].(float64)
	if !ok {
		return nil
	}
	return &v
}
