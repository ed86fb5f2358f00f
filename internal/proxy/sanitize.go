package proxy

// internalFields are upstream bookkeeping keys never returned to callers.
var internalFields = []string{"domain", "sparse", "SyncToken"}

// Sanitize returns a copy of obj without upstream-internal fields.
func Sanitize(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range internalFields {
		delete(out, f)
	}
	return out
}

func sanitizeAll(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, Sanitize(r))
	}
	return out
}
