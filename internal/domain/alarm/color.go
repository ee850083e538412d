package alarm

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DarkenFactor is the standard factor applied to an alarm accent color
	// to produce its window background.
	DarkenFactor = 0.3

	// fallbackBackground is used when an accent color cannot be parsed.
	fallbackBackground = "#2f4f4f"
	// fallbackText is used when a background color cannot be parsed.
	fallbackText = "#FFFFFF"

	// lightTextThreshold is the relative luminance below which light text
	// is required for readable contrast.
	lightTextThreshold = 0.5
)

// Darken reduces each RGB channel of a hex color by the given factor (0-1).
// Unparsable input yields a neutral dark color rather than an error; colors
// are advisory presentation data.
func Darken(hexColor string, factor float64) string {
	r, g, b, err := parseHexColor(hexColor)
	if err != nil {
		return fallbackBackground
	}

	darken := func(channel int) int {
		value := int(float64(channel) * (1 - factor))
		if value < 0 {
			return 0
		}

		return value
	}

	return fmt.Sprintf("#%02x%02x%02x", darken(r), darken(g), darken(b))
}

// ContrastColor picks white or black text for the given background color
// using relative luminance (0.299R + 0.587G + 0.114B, normalized to [0,1]).
// Unparsable input defaults to white.
func ContrastColor(hexColor string) string {
	r, g, b, err := parseHexColor(hexColor)
	if err != nil {
		return fallbackText
	}

	luminance := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255

	if luminance < lightTextThreshold {
		return "#FFFFFF"
	}

	return "#000000"
}

// parseHexColor splits a "#rrggbb" string into its RGB channels.
func parseHexColor(hexColor string) (r, g, b int, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(hexColor), "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hexColor)
	}

	channels := make([]int, 0, 3)

	for i := 0; i < 6; i += 2 {
		value, parseErr := strconv.ParseInt(s[i:i+2], 16, 32)
		if parseErr != nil {
			return 0, 0, 0, fmt.Errorf("invalid hex color %q: %w", hexColor, parseErr)
		}

		channels = append(channels, int(value))
	}

	return channels[0], channels[1], channels[2], nil
}
