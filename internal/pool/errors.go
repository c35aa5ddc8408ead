package pool

import "errors"

// ErrPoolClosed is returned for any operation against a Pool after Close.
var ErrPoolClosed = errors.New("pool: closed")

// ErrConnectFatal signals that acquisition has timed out so many times in a
// row that the database is presumed down. It is not meant to be retried by
// the caller; it should be surfaced to an operator.
var ErrConnectFatal = errors.New("pool: too many consecutive acquisition timeouts, database appears down")
