package prompt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var supportedRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

var nearestRatios = []struct {
	value float64
	ratio string
}{
	{1, "1:1"},
	{0.75, "3:4"},
	{1.33, "4:3"},
	{0.5625, "9:16"},
	{1.78, "16:9"},
}

const ratioTolerance = 0.1

// GCD returns the greatest common divisor of a and b.
func GCD(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// AspectRatio converts a WIDTHxHEIGHT size into one of the ratios the image
// model accepts. ok is false for malformed sizes.
func AspectRatio(size string) (ratio string, ok bool) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(size)), "x")
	if len(parts) != 2 {
		return "", false
	}

	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || width <= 0 {
		return "", false
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || height <= 0 {
		return "", false
	}

	d := GCD(width, height)
	reduced := fmt.Sprintf("%d:%d", width/d, height/d)
	for _, r := range supportedRatios {
		if r == reduced {
			return r, true
		}
	}

	value := float64(width) / float64(height)
	for _, n := range nearestRatios {
		if math.Abs(value-n.value) < ratioTolerance {
			return n.ratio, true
		}
	}

	if value >= 1 {
		return "16:9", true
	}
	return "9:16", true
}
