package engine

import "errors"

var (
	ErrUninitialized         = errors.New("stats engine not initialized")
	ErrInvalidInterfaceIndex = errors.New("invalid radio interface index")
	ErrMissingRadioInfo      = errors.New("no radio info for interface")
	ErrUnassignedLink        = errors.New("radio interface has no assigned link")
	ErrPeerTableFull         = errors.New("peer table full, peer not tracked")
	ErrInvalidLinkIndex      = errors.New("invalid radio link index")
	ErrInvalidStreamIndex    = errors.New("invalid stream index")
)
