package patterns

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDegreesMinutes converts a fixed-width degrees + minutes-and-tenths
// field (DDMMD for latitude, DDDMMD for longitude) to signed decimal
// degrees. degDigits is 2 or 3. S and W are negative.
func ParseDegreesMinutes(s string, degDigits int, dir string) (float64, error) {
	if len(s) != degDigits+3 {
		return 0, fmt.Errorf("coordinate %q: want %d digits", s, degDigits+3)
	}
	deg, err := strconv.Atoi(s[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", s, err)
	}
	tenths, err := strconv.Atoi(s[degDigits:])
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", s, err)
	}
	minutes := float64(tenths) / 10
	if minutes >= 60 {
		return 0, fmt.Errorf("coordinate %q: minutes out of range", s)
	}
	return signed(float64(deg)+minutes/60, dir), nil
}

// ParseLatitude parses a DDMMD latitude.
func ParseLatitude(value, dir string) (float64, error) {
	v, err := ParseDegreesMinutes(value, 2, dir)
	if err != nil {
		return 0, err
	}
	if v > 90 || v < -90 {
		return 0, fmt.Errorf("latitude %s%s out of range", dir, value)
	}
	return v, nil
}

// ParseLongitude parses a DDDMMD longitude.
func ParseLongitude(value, dir string) (float64, error) {
	v, err := ParseDegreesMinutes(value, 3, dir)
	if err != nil {
		return 0, err
	}
	if v > 180 || v < -180 {
		return 0, fmt.Errorf("longitude %s%s out of range", dir, value)
	}
	return v, nil
}

// ParseDecimalCoord parses a coordinate already in decimal degrees, applying
// the hemisphere sign when dir is S or W.
func ParseDecimalCoord(s, dir string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", s, err)
	}
	return signed(v, dir), nil
}

func signed(v float64, dir string) float64 {
	if dir == "S" || dir == "W" {
		return -v
	}
	return v
}
