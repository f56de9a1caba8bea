package domain

import "errors"

// ErrNotFound is returned by lookups that matched nothing the caller may see.
// Category lookups return it both for missing titles and for titles the
// account has no owner/moderator role on; the two cases are indistinguishable
// to the user by design.
var ErrNotFound = errors.New("not found")

// ErrNotLinked is returned by store operations that require an account
// already attached to a verified user.
var ErrNotLinked = errors.New("account not linked to a user")
