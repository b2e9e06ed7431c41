package elastic

import "errors"

// ErrDuplicateRegistration is returned when a plugin is loaded while an entry
// with the same ID is still recorded. The existing entry is kept.
var ErrDuplicateRegistration = errors.New("plugin already registered")
