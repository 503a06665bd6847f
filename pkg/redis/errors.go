package redis

import "errors"

// Errors returned by Connect and Ping. Driver errors are joined to them.
var (
	ErrMissingURL  = errors.New("redis: connection URL is not set")
	ErrInvalidURL  = errors.New("redis: invalid connection URL")
	ErrNotReady    = errors.New("redis: server did not answer before the connect deadline")
	ErrUnreachable = errors.New("redis: ping failed")
)
