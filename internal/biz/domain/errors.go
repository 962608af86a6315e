package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrRoomConflict   = errors.New("room is both a source and a destination")
	ErrInvalidKeyword = errors.New("invalid keyword")
	ErrInvalidUserID  = errors.New("invalid user id")
	ErrInvalidPrompt  = errors.New("prompt must not be empty")
)
