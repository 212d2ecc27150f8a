package domain

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("backing store unavailable")
	ErrFeatureDisabled  = errors.New("feature disabled")
	ErrPropagation      = errors.New("change may not have synced")
)
