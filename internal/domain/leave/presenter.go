package leave

// Present renders a request in the response shape. Dual-cased fields are
// emitted under both spellings with identical values.
func Present(req LeaveRequest) map[string]any {
	out := make(map[string]any, len(Fields)*2)
	for _, f := range Fields {
		value := f.present(req)
		for _, key := range f.Keys() {
			out[key] = value
		}
	}
	return out
}

func PresentAll(reqs []LeaveRequest) []map[string]any {
	out := make([]map[string]any, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, Present(req))
	}
	return out
}
