package router

import "errors"

var ErrNotJoined = errors.New("sender has not joined the target room")
