package session

import "errors"

// Coordinator errors. Each is reported to the sender only and never mutates state.
var (
	ErrGatingViolation    = errors.New("cannot ask new question until all students have answered or time is up")
	ErrInvalidQuestion    = errors.New("question text and at least two options are required")
	ErrNoActiveQuestion   = errors.New("no active question")
	ErrUnknownParticipant = errors.New("student not registered")
	ErrWindowClosed       = errors.New("time is up for this question")
	ErrInvalidOption      = errors.New("invalid option selected")
)
