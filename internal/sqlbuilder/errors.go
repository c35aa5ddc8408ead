package sqlbuilder

import "errors"

// ErrNoTable is returned by Compile when no table has been set on the
// builder state for the calling task.
var ErrNoTable = errors.New("sqlbuilder: no table set")
