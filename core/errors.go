package core

import "errors"

var (
	ErrNotInitialized     = errors.New("timer not initialized")
	ErrAlreadyInitialized = errors.New("timer already initialized")
	ErrNilCallback        = errors.New("nil callback")
	ErrRegistryFull       = errors.New("1Hz registry full")
	ErrDelayBusy          = errors.New("delay already in progress")
	ErrUnknownClockSource = errors.New("unknown clock source")
	ErrInvalidConfig      = errors.New("timer needs a non-zero frequency and a period of at least 2 ticks")
)
