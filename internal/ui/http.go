package ui

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"linedex/internal/index"
)

// Status is the payload of GET /status.
type Status struct {
	File        string `json:"file"`
	Lines       int    `json:"lines"`
	MaxLength   int    `json:"max_length"`
	Encoding    string `json:"encoding"`
	Progress    int    `json:"progress"`
	IndexedSize int64  `json:"indexed_size"`
	IndexBytes  int64  `json:"index_bytes"`
	RSSBytes    int64  `json:"rss_bytes"`
}

// Status reports what the index holds right now. The resident set size
// comes from procfs and reads zero where /proc is unavailable.
func (m *Monitor) Status() Status {
	sn := m.store.Snapshot()
	st := Status{
		File:        m.file,
		Lines:       sn.Lines,
		MaxLength:   sn.MaxLength,
		Encoding:    sn.Encoding().Name(),
		Progress:    sn.Progress,
		IndexedSize: sn.IndexedSize(),
		IndexBytes:  sn.Allocated,
	}
	if p, err := procfs.Self(); err == nil {
		if stat, err := p.Stat(); err == nil {
			st.RSSBytes = int64(stat.ResidentMemory())
		}
	}
	return st
}

func defaultErrorHandler(ctx *fiber.Ctx, err error) error {
	// Status code defaults to 500
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a *fiber.Error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return ctx.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func newHTTPApp(ctx context.Context, m *Monitor) *fiber.App {
	app := fiber.New(
		fiber.Config{
			ErrorHandler:          defaultErrorHandler,
			DisableStartupMessage: true,
		},
	)
	go func() {
		<-ctx.Done()
		app.Shutdown()
	}()

	c := cors.ConfigDefault
	c.ExposeHeaders = "*"
	app.Use(cors.New(c))

	app.Get(
		"/status", func(c *fiber.Ctx) error {
			return c.JSON(m.Status())
		},
	)

	app.Get(
		"/lines", func(c *fiber.Ctx) error {
			lines, err := m.Lines(c.QueryInt("from", 0), c.QueryInt("to", -1))
			if errors.Is(err, index.ErrLineOutOfRange) {
				return &fiber.Error{Code: fiber.StatusBadRequest, Message: err.Error()}
			}
			if err != nil {
				return err
			}
			return c.SendString(strings.Join(lines, "\n"))
		},
	)

	return app
}
