package mongo

import "errors"

var (
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")
	ErrEmptyConnectionURL     = errors.New("empty mongo connection URL")
	ErrUnreachable            = errors.New("mongo: primary did not answer ping")
)
