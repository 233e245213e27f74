package pipeline

import "errors"

// ErrNoSeedReachable is returned by the bootstrap step when no seed peer
// answered.
var ErrNoSeedReachable = errors.New("no seed peer reachable")
