package services

import "fmt"

// ValidationError reports bad or missing input. It is raised before any
// store or queue interaction takes place.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
