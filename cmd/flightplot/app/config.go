package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  int64 // 0 selects the latest session
	Sensor     string
	OutputFile string
	Format     ImageFormat
	Theme      ColorTheme
	TimeZone   *time.Location
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    ClassicTheme,
		TimeZone: time.UTC,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme, tz string
	flag.StringVar(&c.DBPath, "db", "", "Path to the flight archive")
	flag.Int64Var(&c.SessionID, "s", 0, "Session ID, the latest session when omitted")
	flag.StringVar(&c.Sensor, "sensor", "", "Plot a single sensor")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(ClassicTheme), "Color theme. [classic, grayscale, thermal]")
	flag.StringVar(&tz, "tz", "UTC", "Time zone of the time scale")
	flag.Parse()

	if err := c.apply(imageFormat, theme, tz); err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

// apply validates the raw flag values and fills the derived fields
func (c *Config) apply(imageFormat, theme, tz string) error {
	imageFormat = strings.ToLower(imageFormat)

	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.SessionID < 0:
		return errors.New("session id must not be negative")
	case c.OutputFile == "":
		return errors.New("output file is required")
	}

	if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		return fmt.Errorf("invalid image format: %s", imageFormat)
	}
	if _, ok := validThemes[ColorTheme(theme)]; !ok {
		return fmt.Errorf("invalid color theme: %s", theme)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.TimeZone = loc
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return nil
}
