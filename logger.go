package relay

import (
	"github.com/edaniels/golog"
)

// Logger is used by various parts of the package for informational/debugging purposes.
var Logger = golog.Global()

// Debug is helpful to turn on when the library isn't working quite right.
var Debug = false
