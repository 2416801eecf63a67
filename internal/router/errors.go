package router

import "errors"

// ErrUnknownRoute is returned when a route's onward hop names no
// registered mailbox, or when stepping an already-exhausted route.
var ErrUnknownRoute = errors.New("unknown route")
