package room

import "errors"

var (
	ErrUnknownRoom    = errors.New("unknown room")
	ErrNotParticipant = errors.New("not a participant of this direct-message room")
)
