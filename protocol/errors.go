package protocol

import "errors"

var (
	// ErrInvalidCount is returned when fewer than one or more than
	// MaxMaskCount input masks are requested.
	ErrInvalidCount = errors.New("protocol: invalid mask count")

	// ErrMasksNotFound is returned when a masked input references a request
	// id for which no input masks were handed out.
	ErrMasksNotFound = errors.New("protocol: input masks not found")

	// ErrShapeMismatch is returned when the number of blinded values does not
	// match the number of masks, or provider bundles disagree in length.
	ErrShapeMismatch = errors.New("protocol: shape mismatch")

	// ErrInvalidProvider is returned for provider indices outside [0, NumProviders).
	ErrInvalidProvider = errors.New("protocol: invalid provider index")

	// ErrEmptyBundle is returned when combining bundles that carry no shares.
	ErrEmptyBundle = errors.New("protocol: empty share bundle")
)
