// Package util holds small generic helpers shared by the CLI.
package util

// Ptr returns a pointer to a copy of v. Optional numeric flags use it.
func Ptr[T any](v T) *T {
	return &v
}
