package simulate

import "errors"

// ErrInvalidConfig is returned by Generate for a configuration it cannot play.
var ErrInvalidConfig = errors.New("invalid simulation config")
