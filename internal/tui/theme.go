package tui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Color is a terminal color read from a theme file, either a single
// "#RRGGBB" string or a ["light", "dark"] pair.
type Color struct {
	lipgloss.TerminalColor
}

func (c *Color) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		c.TerminalColor = lipgloss.Color(v)
	case []any:
		if len(v) != 2 {
			return fmt.Errorf("adaptive color needs [light, dark], got %d values", len(v))
		}
		light, lok := v[0].(string)
		dark, dok := v[1].(string)
		if !lok || !dok {
			return errors.New("adaptive color values must be strings")
		}
		c.TerminalColor = lipgloss.AdaptiveColor{Light: light, Dark: dark}
	default:
		return fmt.Errorf("unsupported color value %T", v)
	}
	return nil
}

// hex picks the variant of c for the current background.
func (c Color) hex() string {
	switch tc := c.TerminalColor.(type) {
	case lipgloss.Color:
		return string(tc)
	case lipgloss.AdaptiveColor:
		if lipgloss.HasDarkBackground() {
			return tc.Dark
		}
		return tc.Light
	}
	return ""
}

// Theme contains the colors for the application.
type Theme struct {
	Primary    Color
	Subtle     Color
	Success    Color
	Error      Color
	Normal     Color
	Border     Color
	SignalHigh Color
	SignalLow  Color
}

// CurrentTheme is the active theme for the application.
var CurrentTheme = NewDefaultTheme()

// NewDefaultTheme creates a new default theme.
func NewDefaultTheme() Theme {
	return Theme{
		Primary:    Color{lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#D359E3"}}, // Purple/Pink
		Subtle:     Color{lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#616161"}},
		Success:    Color{lipgloss.AdaptiveColor{Light: "#388E3C", Dark: "#81C784"}},
		Error:      Color{lipgloss.AdaptiveColor{Light: "#D32F2F", Dark: "#E57373"}},
		Normal:     Color{lipgloss.AdaptiveColor{Light: "#212121", Dark: "#FFFFFF"}},
		Border:     Color{lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#616161"}},
		SignalHigh: Color{lipgloss.AdaptiveColor{Light: "#00B300", Dark: "#00FF00"}},
		SignalLow:  Color{lipgloss.AdaptiveColor{Light: "#D05F00", Dark: "#BC3C00"}},
	}
}

// LoadTheme reads a TOML theme over the default theme. Colors missing from
// the file keep their default.
func LoadTheme(r io.Reader) (Theme, error) {
	if r == nil {
		return Theme{}, errors.New("no theme reader")
	}
	theme := NewDefaultTheme()
	if _, err := toml.NewDecoder(r).Decode(&theme); err != nil {
		return Theme{}, fmt.Errorf("decode theme: %w", err)
	}
	return theme, nil
}

// LoadThemeFile replaces CurrentTheme with the theme at path. An empty path
// does nothing.
func LoadThemeFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	theme, err := LoadTheme(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	CurrentTheme = theme
	return nil
}

// signalColor blends between SignalLow and SignalHigh by strength (0-100).
func signalColor(strength uint8) lipgloss.Color {
	start, err := colorful.Hex(CurrentTheme.SignalLow.hex())
	if err != nil {
		return lipgloss.Color(CurrentTheme.SignalLow.hex())
	}
	end, err := colorful.Hex(CurrentTheme.SignalHigh.hex())
	if err != nil {
		return lipgloss.Color(CurrentTheme.SignalHigh.hex())
	}
	p := float64(strength) / 100.0
	return lipgloss.Color(start.BlendRgb(end, p).Hex())
}
