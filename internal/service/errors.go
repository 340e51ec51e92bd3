package service

import "errors"

var (
	ErrServiceClosed = errors.New("session service is closed")
)
