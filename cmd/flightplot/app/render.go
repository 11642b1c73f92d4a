package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkHeight = 5
	labelPadding   = 8

	defaultRowHeight     = 20
	defaultMinPlotWidth  = 600
	defaultTopBorder     = 30
	defaultBottomBorder  = 30
	defaultTimeFormat    = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var ErrNoData = errors.New("nothing to render")

// BorderConfig defines the sizes of white space around the strip
type BorderConfig struct {
	Top    int // Space for the time scale
	Left   int // Space for row labels, grown to fit the longest label
	Bottom int // Space for the information bar
	Right  int // Space for row bounds, grown to fit the widest bounds
}

// RenderConfig holds all configuration options for strip visualization
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize     float64
	ColorTheme   ColorTheme
	RowHeight    int
	MinPlotWidth int

	BorderConfig BorderConfig
}

// StripRenderer draws StripData as a heatmap with one row per sensor field
type StripRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

func NewStripRenderer(config RenderConfig) *StripRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.ColorTheme == "" {
		config.ColorTheme = ClassicTheme
	}
	if config.RowHeight <= 0 {
		config.RowHeight = defaultRowHeight
	}
	if config.MinPlotWidth <= 0 {
		config.MinPlotWidth = defaultMinPlotWidth
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}

	return &StripRenderer{
		colorMap: NewColorMapper(config.ColorTheme),
		config:   config,
	}
}

// CellWidth returns the width in pixels of one snapshot column
func (r *StripRenderer) CellWidth(strip *StripData) int {
	return max(1, r.config.MinPlotWidth/max(1, len(strip.Times)))
}

// Render creates an annotated image of strip. The title goes into the
// information bar.
func (r *StripRenderer) Render(strip *StripData, title string) (*image.RGBA, error) {
	if strip.Empty() {
		return nil, ErrNoData
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	plotArea := r.layout(ann, strip)
	img := image.NewRGBA(image.Rect(0, 0,
		plotArea.Max.X+ann.borders.Right,
		plotArea.Max.Y+ann.borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	if err = ann.annotate(img, plotArea, strip, title); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderStrip(img, plotArea, r.CellWidth(strip), strip)
	return img, nil
}

// layout sizes the borders to fit the row annotations and returns the plot area
func (r *StripRenderer) layout(ann *annotator, strip *StripData) image.Rectangle {
	borders := r.config.BorderConfig
	for _, row := range strip.Rows {
		borders.Left = max(borders.Left, ann.measure(row.Label)+2*labelPadding)
		borders.Right = max(borders.Right, ann.measure(formatBounds(row.Bounds))+2*labelPadding)
	}
	ann.borders = borders

	plotWidth := r.CellWidth(strip) * len(strip.Times)
	plotHeight := r.config.RowHeight * len(strip.Rows)
	return image.Rect(borders.Left, borders.Top, borders.Left+plotWidth, borders.Top+plotHeight)
}

func (r *StripRenderer) renderStrip(img *image.RGBA, area image.Rectangle, cellWidth int, strip *StripData) {
	for y, row := range strip.Rows {
		top := area.Min.Y + y*r.config.RowHeight
		for x, value := range row.Values {
			left := area.Min.X + x*cellWidth
			cell := image.Rect(left, top, left+cellWidth, top+r.config.RowHeight-1)
			draw.Draw(img, cell, image.NewUniform(r.colorMap.Color(value, row.Bounds)), image.Point{}, draw.Src)
		}
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	borders  BorderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		borders: config.BorderConfig,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) measure(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, strip *StripData, title string) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawRowLabels(area, strip); err != nil {
		return fmt.Errorf("drawing row labels: %w", err)
	}
	if err := a.drawTimeScale(img, area, strip); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, strip, title); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) drawRowLabels(area image.Rectangle, strip *StripData) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for i, row := range strip.Rows {
		center := area.Min.Y + i*a.config.RowHeight + a.config.RowHeight/2
		textY := center + fontHeight/2 - metrics.Descent.Round()

		pt := freetype.Pt(area.Min.X-labelPadding-a.measure(row.Label), textY)
		if _, err := a.context.DrawString(row.Label, pt); err != nil {
			return err
		}

		pt = freetype.Pt(area.Max.X+labelPadding, textY)
		if _, err := a.context.DrawString(formatBounds(row.Bounds), pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, strip *StripData) error {
	start, end := strip.Start(), strip.End()
	duration := end.Sub(start)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := area.Min.Y - tickMarkHeight - fontHeight/2

	step := calculateNiceTimeStep(duration)
	tick := start.Truncate(step)
	if tick.Before(start) {
		tick = tick.Add(step)
	}

	for ; !tick.After(end); tick = tick.Add(step) {
		x := area.Min.X
		if duration > 0 {
			x += int(float64(tick.Sub(start)) / float64(duration) * float64(area.Dx()-1))
		}

		for y := area.Min.Y - tickMarkHeight; y < area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := tick.In(a.config.Location).Format(a.config.TimeFormat)
		pt := freetype.Pt(x-a.measure(label)/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}

		if duration == 0 {
			break
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, strip *StripData, title string) error {
	info := fmt.Sprintf("%s; Time: %s - %s; %s snapshots",
		title,
		strip.Start().In(a.config.Location).Format(a.config.DatetimeFormat),
		strip.End().In(a.config.Location).Format(a.config.DatetimeFormat),
		humanize.Comma(int64(len(strip.Times))))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	_, err := a.context.DrawString(info, freetype.Pt(labelPadding, textY))
	return err
}

func formatBounds(b Bounds) string {
	return fmt.Sprintf("%.2f … %.2f", b.Min, b.Max)
}

func calculateNiceTimeStep(duration time.Duration) time.Duration {
	roughStep := duration.Seconds() / 6

	niceIntervals := []float64{
		1, 5, 10, 30,
		60, 300, 600, 900, 1800,
		3600, 7200, 14400,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}
	return 6 * time.Hour
}
