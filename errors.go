package tunebook

import (
	"errors"

	"github.com/ceol/tunebook-go/internal/midinorm"
	"github.com/ceol/tunebook-go/internal/schedule"
	"github.com/ceol/tunebook-go/internal/synth"
)

// Re-exported failure taxonomy. Activation failures (normalizer,
// schedule builder, engine init) abort activation and may simply be
// retried; transport transitions never fail.
var (
	ErrUnsupportedFormat = midinorm.ErrUnsupportedFormat
	ErrEncodingFailure   = midinorm.ErrEncodingFailure
	ErrEmptyOutput       = midinorm.ErrEmptyOutput
	ErrMalformedMIDI     = schedule.ErrMalformedMIDI
	ErrEngineInit        = synth.ErrEngineInit
	ErrRenderTimeout     = synth.ErrRenderTimeout

	// ErrNoBackend reports activation without a configured backend
	// factory.
	ErrNoBackend = errors.New("no audio backend configured")
	// ErrClosed reports use of a player after Close.
	ErrClosed = errors.New("player is closed")
)
