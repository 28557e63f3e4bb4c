package uid

import "github.com/google/uuid"

// New returns a time-ordered (version 7) UUID, so ids issued later sort
// after earlier ones. It falls back to a random UUID if the clock read
// fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
