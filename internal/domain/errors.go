package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrProviderFailure = errors.New("provider failure")
	ErrEmptyAudio      = errors.New("empty audio payload")
)
