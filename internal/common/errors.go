package common

import "errors"

// Error taxonomy shared by every pipeline stage. Concrete errors wrap one of
// these so callers can branch with errors.Is.
var (
	// ErrParse marks a malformed dataset line.
	ErrParse = errors.New("parse error")
	// ErrShape marks inconsistent feature lengths or a mismatch with the model input rank.
	ErrShape = errors.New("shape error")
	// ErrConfiguration marks settings that cannot produce a valid run, e.g. an empty partition.
	ErrConfiguration = errors.New("configuration error")
	// ErrIO marks a missing dataset or an unwritable artifact location.
	ErrIO = errors.New("io error")
)
