package score

import "errors"

var (
	// ErrInvalidInput is returned for malformed engine input, e.g. an empty required field list.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyCorpus is returned by checkers that cannot score against zero requirements.
	ErrEmptyCorpus = errors.New("empty requirement corpus")
)
