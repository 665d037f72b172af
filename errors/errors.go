package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrConnectionLost   = fmt.Errorf("connection lost")
	ErrStoreUnavailable = fmt.Errorf("delivery store unavailable")
	ErrNotRegistered    = fmt.Errorf("connection has not registered an identity")
	ErrAgentsOnly       = fmt.Errorf("only agents may join a conversation")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
