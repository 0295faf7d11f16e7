package scoring

import "errors"

// ErrPreconditionFailed reports an integrity violation in persisted data, such
// as a recompute whose seed round has no stored score. It is never recovered by
// substituting a default.
var ErrPreconditionFailed = errors.New("scoring precondition failed")
