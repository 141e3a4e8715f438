// Package errdefs holds the error kinds shared by every layer of the image
// tool. Callers wrap these with context and test for them with errors.Is.
package errdefs

import "errors"

var (
	// ErrIO is a short read or write, or a failed seek on the backing medium.
	ErrIO = errors.New("i/o error")
	// ErrInvalidArgument covers malformed input: bad UUIDs, undersized disks,
	// oversized bootstrap binaries, positions beyond the medium.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrExist is returned when inserting a name that is already taken.
	ErrExist = errors.New("name already exists")
	// ErrNotFound is returned when a path or parent does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned when an image does not decode.
	ErrCorrupt = errors.New("corrupt image")
)
