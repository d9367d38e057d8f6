package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrHandleTaken     = errors.New("handle already taken")
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("invalid login or password")
	// ErrTransientIO wraps store failures the caller may retry.
	ErrTransientIO = errors.New("store temporarily unavailable")
	// ErrPartialFanout means the post is published but some follower feeds were not written yet.
	ErrPartialFanout = errors.New("partial fanout failure")
)

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientIO, err)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
