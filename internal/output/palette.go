package output

import "github.com/fatih/color"

// Palette colors terminal text. A disabled palette returns its input
// unchanged, which is what --no-color, --plain and non-TTY stdout get.
type Palette struct {
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
	accent *color.Color
	bold   *color.Color
	dim    *color.Color
}

func NewPalette(enabled bool) Palette {
	p := Palette{
		good:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed, color.Bold),
		accent: color.New(color.FgCyan),
		bold:   color.New(color.Bold),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.good, p.warn, p.bad, p.accent, p.bold, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p Palette) Good(s string) string   { return sprint(p.good, s) }
func (p Palette) Warn(s string) string   { return sprint(p.warn, s) }
func (p Palette) Bad(s string) string    { return sprint(p.bad, s) }
func (p Palette) Accent(s string) string { return sprint(p.accent, s) }
func (p Palette) Bold(s string) string   { return sprint(p.bold, s) }
func (p Palette) Dim(s string) string    { return sprint(p.dim, s) }

func sprint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}
