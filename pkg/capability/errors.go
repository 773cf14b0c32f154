package capability

import "errors"

var (
	ErrNoSource       = errors.New("capability: no readiness source")
	ErrSourcePanicked = errors.New("capability: readiness source panicked")
)
