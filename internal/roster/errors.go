package roster

import "errors"

var (
	ErrMissingKey  = errors.New("delete needs an id or a natural key")
	ErrNotOnRoster = errors.New("email is not on the roster")
)
