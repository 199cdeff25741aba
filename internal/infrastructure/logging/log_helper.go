package logging

func logParamsToZapParams(keys map[ExtraKey]any) []any {
	params := make([]any, 0, len(keys)*2)

	for k, v := range keys {
		params = append(params, string(k), v)
	}

	return params
}

func logParamsToZeroParams(keys map[ExtraKey]any) map[string]any {
	params := make(map[string]any, len(keys))

	for k, v := range keys {
		params[string(k)] = v
	}

	return params
}

// WithError returns a copy of extra carrying err under ErrorMessage.
func WithError(err error, extra map[ExtraKey]any) map[ExtraKey]any {
	out := make(map[ExtraKey]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	if err != nil {
		out[ErrorMessage] = err.Error()
	}
	return out
}
