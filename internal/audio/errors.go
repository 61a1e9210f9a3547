package audio

import "errors"

// Failure classes. Callers wrap these with context and test with errors.Is.
var (
	ErrUsage               = errors.New("invalid arguments")
	ErrDeviceResolution    = errors.New("device names could not be resolved")
	ErrAggregateCreation   = errors.New("aggregate device creation failed")
	ErrPropertyNotSettable = errors.New("property is not settable")
	ErrBackend             = errors.New("audio backend rejected the request")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrIndexOutOfRange     = errors.New("device index out of range")
	ErrAlreadyRecording    = errors.New("already recording")
	ErrNotRecording        = errors.New("not recording")
	ErrSpawn               = errors.New("failed to start capture process")
)
