package position

import "errors"

// ErrMalformedIdentity is returned when a URL or host cannot be turned into a
// position. Callers must reject the whole operation that needed the position.
var ErrMalformedIdentity = errors.New("malformed identity")
