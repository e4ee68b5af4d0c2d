package cards

import "errors"

// ErrConfiguration indicates the requested deal shape cannot be satisfied by
// the set's card pool. It is fatal to room creation and surfaced to the
// creator only.
var ErrConfiguration = errors.New("card pool cannot fill requested deal shape")

// ErrSetNotFound indicates the catalog has no pool for the requested set code.
var ErrSetNotFound = errors.New("set not found in catalog")
