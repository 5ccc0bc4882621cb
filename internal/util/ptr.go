package util

// Ptr returns a pointer to the given value. Handy for the optional
// timestamp and bound fields that are modeled as pointers.
func Ptr[T any](v T) *T {
	return &v
}
