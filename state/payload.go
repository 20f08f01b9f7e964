package state

import "fmt"

// Payload is the opaque result of one stage. The orchestrator only ever
// inspects the sentinel shape written for tolerated failures.
type Payload map[string]any

// Sentinel returns the placeholder recorded when a tolerated stage fails.
func Sentinel(msg string) Payload {
	return Payload{"status": "failed", "error": msg}
}

// IsSentinel reports whether p is a tolerated-failure placeholder.
func IsSentinel(p Payload) bool {
	if p == nil {
		return false
	}
	status, _ := p["status"].(string)
	_, hasErr := p["error"]
	return status == "failed" && hasErr
}

// Has reports whether key is present and non-nil.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns p[key] formatted as a string, or "" when absent.
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Map returns p[key] as a nested payload when it is a map.
func (p Payload) Map(key string) Payload {
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v)
	case Payload:
		return v
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Payload:
		return Payload(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
