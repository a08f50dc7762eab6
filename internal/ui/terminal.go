package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a TTY.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ColorEnabled decides whether stdout gets ANSI colors. NO_COLOR follows
// https://no-color.org.
func ColorEnabled(out *os.File, noColor, plain bool) bool {
	if noColor || plain {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return IsTerminal(out)
}
