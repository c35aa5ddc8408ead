package query

import "errors"

// ErrNoRows distinguishes "the query succeeded and returned nothing" from
// a driver failure, so callers of One never have to sniff an empty result
// for meaning. Column does not use it; it returns "" when no rows match.
var ErrNoRows = errors.New("query: no rows")

// ErrInvalidModel is returned by SetModel for any role outside {read,
// write}.
var ErrInvalidModel = errors.New("query: model must be read or write")
