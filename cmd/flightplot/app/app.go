package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pingu-sat/internal/storage"
)

var ErrNoSession = errors.New("session not found")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return plotSession(ctx, store, config, logger)
}

func plotSession(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	session, err := findSession(ctx, store, config.SessionID)
	if err != nil {
		return err
	}

	logger.Info("reading flight archive",
		slog.Int64("session", session.ID),
		slog.String("flight", session.FlightID),
		slog.String("sensor", config.Sensor))

	records, err := store.Readings(ctx, session.ID, config.Sensor)
	if err != nil {
		return fmt.Errorf("reading session %d: %w", session.ID, err)
	}

	strip := NewStripData(records)
	if strip.Empty() {
		return fmt.Errorf("session %d: %w", session.ID, ErrNoData)
	}

	logger.Info("finished reading readings",
		slog.Group("stats",
			slog.String("records", humanize.Comma(int64(len(records)))),
			slog.Int("rows", len(strip.Rows)),
			slog.String("start", strip.Start().In(config.TimeZone).Format(time.DateTime)),
			slog.String("end", strip.End().In(config.TimeZone).Format(time.DateTime)),
		))

	renderer := NewStripRenderer(RenderConfig{
		Location:   config.TimeZone,
		ColorTheme: config.Theme,
	})

	img, err := renderer.Render(strip, fmt.Sprintf("Flight %s", session.FlightID))
	if err != nil {
		return fmt.Errorf("rendering session %d: %w", session.ID, err)
	}

	logger.Info("writing image",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	return writeImage(config.OutputFile, config.Format, img)
}

// findSession returns the session with id, or the latest one when id is 0
func findSession(ctx context.Context, store storage.Store, id int64) (*storage.Session, error) {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, ErrNoSession
	}

	if id == 0 {
		return sessions[len(sessions)-1], nil
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoSession, id)
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
