package config

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

// ParseColor reads "transparent", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "transparent" {
		return color.NRGBA{}, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	switch len(raw) {
	case 3:
		return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 255}, nil
	case 4:
		return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: raw[3]}, nil
	default:
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
}
