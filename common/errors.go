package common

import "errors"

// Error kinds reported by file-system operations. Callers wrap them with
// context and test with errors.Is.
var (
	ErrNotLoggedIn      = errors.New("please enter your UID: login <uid>")
	ErrNotFormatted     = errors.New("not formatted")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidName      = errors.New("invalid name")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrWrongType        = errors.New("wrong type")
	ErrNotEmpty         = errors.New("directory not empty")
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrFileTooLarge     = errors.New("file too large")
	ErrOutOfSpace       = errors.New("out of blocks")
	ErrOutOfInodes      = errors.New("out of inodes")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrInvalidInode     = errors.New("invalid inode")
)
