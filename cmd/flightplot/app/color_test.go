package app

import (
	"image/color"
	"testing"
)

func TestHSV_RGB(t *testing.T) {
	tests := []struct {
		name string
		hsv  HSV
		want color.RGBA
	}{
		{"red", HSV{H: 0, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{"green", HSV{H: 120, S: 1, V: 1}, color.RGBA{G: 255, A: 255}},
		{"blue", HSV{H: 240, S: 1, V: 1}, color.RGBA{B: 255, A: 255}},
		{"full turn", HSV{H: 360, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{"gray", HSV{H: 42, S: 0, V: 0.5}, color.RGBA{R: 127, G: 127, B: 127, A: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hsv.RGB(); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapperWithSize(GrayscaleTheme, 16)
	bounds := Bounds{Min: 10, Max: 20}

	if got := cm.Color(nil, bounds); got != noDataColor {
		t.Errorf("Expected the no-data color for a missing value, got %v", got)
	}

	low := cm.Color(float(10), bounds)
	high := cm.Color(float(20), bounds)
	if low != cm.palette[0] || high != cm.palette[15] {
		t.Errorf("Expected bounds to map to the palette ends, got %v and %v", low, high)
	}
	if cm.Color(float(-100), bounds) != low || cm.Color(float(100), bounds) != high {
		t.Error("Expected out of range values to be clamped")
	}
	if got := cm.Color(float(7), Bounds{Min: 7, Max: 7}); got != cm.palette[8] {
		t.Errorf("Expected a flat row to use the middle color, got %v", got)
	}

	for _, theme := range []ColorTheme{ClassicTheme, GrayscaleTheme, ThermalTheme} {
		for _, c := range NewColorMapper(theme).palette {
			if c == color.Color(noDataColor) {
				t.Errorf("Theme %s: palette must not contain the no-data color", theme)
				break
			}
		}
	}
}
