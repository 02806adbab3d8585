package testutils

// TestingT is the subset of testing.T the helpers report through.
type TestingT interface {
	Errorf(format string, args ...any)
}

// FieldsToMap folds a logger call's variadic key/value arguments into a map
// for assertion. Keys and values arrive interleaved the way the logging
// package's Debug/Info/Warn/Error methods take them; a non-string key is
// reported through t and skipped, as is a trailing key with no value.
func FieldsToMap(t TestingT, keysAndValues []any) map[string]any {
	out := make(map[string]any, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			t.Errorf("Log field key at index %d is %T, expected string", i, keysAndValues[i])
			continue
		}
		out[key] = keysAndValues[i+1]
	}

	if len(keysAndValues)%2 != 0 {
		t.Errorf("Log fields end with a dangling key at index %d: %v",
			len(keysAndValues)-1, keysAndValues[len(keysAndValues)-1])
	}

	return out
}
