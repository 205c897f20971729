package extension

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an extension id is not present in a list
var ErrNotFound = errors.New("extension not found")

// ParseError reports a malformed descriptor
type ParseError struct {
	Kind Kind
	Ref  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s extension %s: %v", e.Kind, e.Ref, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadError reports a failing constructor or injection step
type LoadError struct {
	Key   Key
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("failed to load extension %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("failed to load extension %s (%s): %v", e.Key, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RequiredExtensionsMissingError is raised when a sibling fan-out cannot satisfy
// the ids an extension declared as required
type RequiredExtensionsMissingError struct {
	Dependent Key
	Kind      Kind
	Missing   []string
}

func (e *RequiredExtensionsMissingError) Error() string {
	return fmt.Sprintf("extension %s requires %s extensions that are not available: %s",
		e.Dependent, e.Kind, strings.Join(e.Missing, ", "))
}

// UpdateError reports a failed update check step
type UpdateError struct {
	Key   Key
	Stage string
	Err   error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update of %s failed while %s: %v", e.Key, e.Stage, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// SourceOf extracts the extension key from any error in the taxonomy
func SourceOf(err error) (Key, bool) {
	var parseErr *ParseError
	var loadErr *LoadError
	var missingErr *RequiredExtensionsMissingError
	var updateErr *UpdateError

	switch {
	case errors.As(err, &loadErr):
		return loadErr.Key, true
	case errors.As(err, &missingErr):
		return missingErr.Dependent, true
	case errors.As(err, &updateErr):
		return updateErr.Key, true
	case errors.As(err, &parseErr):
		return Key{Kind: parseErr.Kind, ID: parseErr.Ref}, true
	}
	return Key{}, false
}
