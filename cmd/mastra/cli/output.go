package cli

import "github.com/fatih/color"

var (
	successStyle = color.New(color.FgGreen)
	errorStyle   = color.New(color.FgRed)
	warningStyle = color.New(color.FgYellow, color.Bold)
	infoStyle    = color.New(color.FgCyan)
	headerStyle  = color.New(color.FgCyan, color.Bold)
	mutedStyle   = color.New(color.FgWhite, color.Faint)
)

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	if length <= 3 {
		return s[:length]
	}
	return s[:length-3] + "..."
}
