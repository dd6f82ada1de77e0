package tui

import (
	"github.com/Veraticus/spice-import/internal/tui/themes"
)

// Config holds TUI configuration.
type Config struct {
	Theme  themes.Theme
	Width  int
	Height int
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:  themes.Default,
		Width:  100,
		Height: 30,
	}
}

// WithTheme selects a theme by name.
func WithTheme(name string) Option {
	return func(c *Config) {
		c.Theme = themes.GetTheme(name)
	}
}

// WithSize sets the initial terminal size, used until the first resize event.
func WithSize(width, height int) Option {
	return func(c *Config) {
		if width > 0 {
			c.Width = width
		}
		if height > 0 {
			c.Height = height
		}
	}
}
