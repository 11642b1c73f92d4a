package app

import (
	"image/color"
	"math"
)

// ColorTheme is a predefined scale from a normalized value to a color
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white

	DefaultColorMapSize = 256
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	ThermalTheme:   {},
}

// noDataColor marks cells where the sensor had no reading
var noDataColor = color.RGBA{A: 255}

// Bounds is the value range of one row
type Bounds struct {
	Min float64
	Max float64
}

// ColorMapper maps values within Bounds onto a pre-computed palette
type ColorMapper struct {
	palette []color.Color
}

func NewColorMapper(theme ColorTheme) *ColorMapper {
	return NewColorMapperWithSize(theme, DefaultColorMapSize)
}

func NewColorMapperWithSize(theme ColorTheme, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	fn := getColorTheme(theme)
	cm := &ColorMapper{palette: make([]color.Color, size)}
	for i := range cm.palette {
		cm.palette[i] = fn(float64(i) / float64(size-1))
	}
	return cm
}

// Color returns the color of value within bounds. A flat row maps to the
// middle of the palette.
func (cm *ColorMapper) Color(value *float64, bounds Bounds) color.Color {
	if value == nil {
		return noDataColor
	}

	span := bounds.Max - bounds.Min
	if span <= 0 {
		return cm.palette[len(cm.palette)/2]
	}

	index := int((*value - bounds.Min) / span * float64(len(cm.palette)-1))
	if index < 0 {
		return cm.palette[0]
	}
	if index >= len(cm.palette) {
		return cm.palette[len(cm.palette)-1]
	}
	return cm.palette[index]
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space
func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360) / 60
	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(x float64) color.Color {
			v := uint8((0.15 + 0.85*math.Pow(x, 0.7)) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThermalTheme:
		return func(x float64) color.Color {
			if x < 0.33 {
				return color.RGBA{R: uint8((0.15 + x*2.5) * 255), A: 255}
			}
			if x < 0.66 {
				return color.RGBA{R: 255, G: uint8(((x - 0.33) * 3) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (x-0.66)*3) * 255), A: 255}
		}

	default:
		// never fully dark, black is reserved for missing readings
		return func(x float64) color.Color {
			return HSV{
				H: 240 - (x * 240),
				S: 1.0,
				V: 0.35 + (x * 0.6),
			}.RGB()
		}
	}
}
