package shared

import "github.com/google/uuid"

// ValidID reports whether id is a well-formed UUID. Lookups use it to answer
// not-found for garbage ids instead of surfacing a database cast error.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
