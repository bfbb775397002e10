package main

import (
	"github.com/fatih/color"

	"github.com/cdtp/vitalink/internal/wire"
)

var (
	normalColor   = color.New(color.FgGreen)
	warningColor  = color.New(color.FgYellow)
	criticalColor = color.New(color.FgRed, color.Bold)
)

// colorizeStatus renders the status word in its severity color. Color output
// is automatically disabled when stdout is not a terminal.
func colorizeStatus(status wire.Status) string {
	switch status {
	case wire.StatusCritical:
		return criticalColor.Sprint(string(status))
	case wire.StatusWarning:
		return warningColor.Sprint(string(status))
	default:
		return normalColor.Sprint(string(status))
	}
}
