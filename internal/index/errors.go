package index

import "errors"

// ErrBufferFull is returned by Merge when accepting a batch would exceed the
// hard limit of the buffer.
var ErrBufferFull = errors.New("postings buffer is full")
