package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		size string
		want string
		ok   bool
	}{
		{"1200x630", "16:9", true},
		{"1920x1080", "16:9", true},
		{"1080X1920", "9:16", true},
		{"1024x1024", "1:1", true},
		{"800x600", "4:3", true},
		{"600x800", "3:4", true},
		{"1000x1010", "1:1", true},
		{"1330x1000", "4:3", true},
		{"3000x1000", "16:9", true},
		{"100x1000", "9:16", true},
		{"1200*630", "", false},
		{"1200", "", false},
		{"x630", "", false},
		{"0x630", "", false},
		{"-5x10", "", false},
		{"axb", "", false},
		{"", "", false},
		{"1x2x3", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			got, ok := AspectRatio(tt.size)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAspectRatio_AlwaysSupported(t *testing.T) {
	for w := 1; w <= 60; w += 7 {
		for h := 1; h <= 60; h += 5 {
			got, ok := AspectRatio(fmt.Sprintf("%dx%d", w, h))
			assert.True(t, ok)
			assert.Contains(t, supportedRatios, got)
		}
	}
}

func TestGCD(t *testing.T) {
	pairs := [][2]int{{1200, 630}, {1920, 1080}, {7, 13}, {0, 9}, {12, 0}, {18, 24}}
	for _, p := range pairs {
		a, b := p[0], p[1]
		assert.Equal(t, GCD(a, b), GCD(b, a))
	}
	assert.Equal(t, 12, GCD(12, 0))
	assert.Equal(t, 30, GCD(1200, 630))

	d := GCD(1200, 630)
	assert.Equal(t, 1, GCD(1200/d, 630/d))
}
