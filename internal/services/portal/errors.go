package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginFailed means the portal did not confirm the session after sign in
	ErrLoginFailed = errors.New("portal login failed")

	// ErrCourseNotFound means no course option matched the requested course name
	ErrCourseNotFound = errors.New("course not found in portal")

	// ErrStateNotRecognized means the state selector offered no option for the typed state
	ErrStateNotRecognized = errors.New("state not recognized by portal")

	// ErrOptionNotFound means a select element had no option with the requested text
	ErrOptionNotFound = errors.New("select option not found")
)

// OptionError names the select element and the text that had no matching option
type OptionError struct {
	Field string
	Value string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%v: %s %q", ErrOptionNotFound, e.Field, e.Value)
}

func (e *OptionError) Is(target error) bool {
	return target == ErrOptionNotFound
}
