package city

import "errors"

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrLocationNotFound = errors.New("location not found")
)
