package technique

import (
	"fmt"

	"github.com/tailored-agentic-units/obfusengine/config"
)

// Resolution errors. All wrap config.ErrConfiguration and are returned
// before any stage runs.
var (
	ErrUnknownTechnique   = fmt.Errorf("%w: unknown technique", config.ErrConfiguration)
	ErrDomainMismatch     = fmt.Errorf("%w: technique does not apply to script domain", config.ErrConfiguration)
	ErrDuplicateTechnique = fmt.Errorf("%w: technique requested more than once", config.ErrConfiguration)
	ErrNoTechniques       = fmt.Errorf("%w: no techniques requested", config.ErrConfiguration)
	ErrDuplicateSpec      = fmt.Errorf("%w: technique id registered twice", config.ErrConfiguration)
)
