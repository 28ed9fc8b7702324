package app

import "errors"

var (
	// ErrInvalidTransition is returned when a journey is asked to advance,
	// complete or abandon from a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid journey transition")

	// ErrGenerationFailure indicates the assistant reply could not be produced.
	// Writes made earlier in the same turn (user message, checkpoint updates)
	// are kept; the caller may retry the turn.
	ErrGenerationFailure = errors.New("reply generation failed")

	// ErrExtractionUnavailable indicates the extraction model call failed. It
	// is handled inside the turn pipeline and never surfaces to API callers.
	ErrExtractionUnavailable = errors.New("checkpoint extraction unavailable")

	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	ErrUserNotFound      = errors.New("user not found")
	ErrJourneyNotFound   = errors.New("journey not found")
	ErrJourneyForbidden  = errors.New("journey belongs to another user")
	ErrJourneyInactive   = errors.New("journey is no longer active")
)
