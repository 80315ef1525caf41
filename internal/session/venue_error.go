package session

import (
	"main/pkg/exception"
)

// VenueError is a protocol-level rejection surfaced from the venue's error
// response. Callers inspect Code for known retry strategies.
type VenueError struct {
	Code        string
	Description string
}

func (e *VenueError) Error() string {
	if e.Description == "" {
		return "venue error: " + e.Code
	}
	return "venue error: " + e.Code + ": " + e.Description
}

// Is lets errors.Is(err, exception.ErrVenueError) match any venue error.
func (e *VenueError) Is(target error) bool {
	return target == exception.ErrVenueError
}
