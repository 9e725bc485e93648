package errors

import (
	"fmt"
	"time"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// NotDirectory represents a path that exists, but was expected to be a
// directory.
type NotDirectory struct {
	Path string
}

func (err NotDirectory) Error() string {
	return fmt.Sprintf("%q is not a directory", err.Path)
}

// InvalidInterval is returned when the delay between synchronization cycles
// isn't a positive duration.
type InvalidInterval struct {
	Interval time.Duration
}

func (err InvalidInterval) Error() string {
	return fmt.Sprintf("invalid sync interval: %s", err.Interval)
}

// FriendlyMessage implements FriendlyError.
func (err InvalidInterval) FriendlyMessage() string {
	return "Time interval is not valid. Please insert a value greater than 0."
}

// NestedFolders is returned when the source and replica overlap, so that
// copying one into the other would never terminate.
type NestedFolders struct {
	Source, Replica string
}

func (err NestedFolders) Error() string {
	return fmt.Sprintf("source %q and replica %q overlap", err.Source, err.Replica)
}

// FriendlyMessage implements FriendlyError.
func (err NestedFolders) FriendlyMessage() string {
	return fmt.Sprintf("The source folder (%s) and the replica folder (%s) "+
		"can't be inside one another. Please choose separate folders.",
		err.Source, err.Replica)
}
