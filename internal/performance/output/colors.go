package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Header    *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Dim       *color.Color
	Pass      *color.Color
	Fail      *color.Color
	Warn      *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:    color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Pass:      color.New(color.FgGreen),
		Fail:      color.New(color.FgRed),
		Warn:      color.New(color.FgYellow),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NewColorScheme returns the default scheme with colors forced on or off,
// independent of the package-level color.NoColor detection.
func NewColorScheme(enabled bool) *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Header, s.Rule, s.Label, s.Value, s.Dim, s.Pass, s.Fail, s.Warn, s.Highlight}
}

// mark returns a colored check mark or cross.
func (s *ColorScheme) mark(ok bool) string {
	if ok {
		return s.Pass.Sprint("✓")
	}
	return s.Fail.Sprint("✗")
}
