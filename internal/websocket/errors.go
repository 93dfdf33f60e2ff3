package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidJSON      = errors.New("invalid JSON payload")
	ErrWriteTimeout     = errors.New("write timeout exceeded")
)
