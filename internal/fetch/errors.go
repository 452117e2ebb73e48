package fetch

import "errors"

var (
	// ErrLookupMiss marks a requested file or container that the index or master file does not list.
	ErrLookupMiss = errors.New("lookup miss")
	// ErrNoInput is returned when a required input location is empty.
	ErrNoInput = errors.New("input not provided")
	// ErrRemoteOutput is returned when immediate extraction is pointed at an object store.
	ErrRemoteOutput = errors.New("extraction needs a local output directory")
)
