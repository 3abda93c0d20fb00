package notices

import "errors"

// ErrNotFound marks a detail target the site answered with 404 or 410.
// Callers synthesize a fallback document instead of retrying.
var ErrNotFound = errors.New("detail target not found")
