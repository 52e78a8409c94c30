// Package html renders server-side pages for the admin surface.
package html

import (
	"bytes"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"

	"github.com/evidenceledger/oadrvtn/internal/errl"
)

// Renderer renders templates from a views directory into fiber responses.
type Renderer struct {
	engine *html.Engine
}

// NewRenderer creates a new HTML renderer.
// Templates are loaded from the "views" directory of viewsfs, or from extDir when it is not empty,
// which allows editing templates without rebuilding.
func NewRenderer(viewsfs fs.FS, extDir string) (*Renderer, error) {
	var engine *html.Engine

	if extDir != "" {
		engine = html.NewFileSystem(http.Dir(extDir), ".html")
		engine.Reload(true)
	} else {
		viewsDir, err := fs.Sub(viewsfs, "views")
		if err != nil {
			return nil, errl.Error(err)
		}
		engine = html.NewFileSystem(http.FS(viewsDir), ".html")
	}
	engine.AddFunc("join", strings.Join)

	if err := engine.Load(); err != nil {
		return nil, errl.Error(err)
	}

	return &Renderer{engine: engine}, nil
}

// ResponseSecurityHeaders sets the security headers for HTML responses
func ResponseSecurityHeaders(c *fiber.Ctx) {
	c.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; frame-ancestors 'none';")
	c.Set("X-Frame-Options", "DENY")
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Set("Cache-Control", "no-store")
}

// Render executes templateName with data and sends the result.
func (h *Renderer) Render(c *fiber.Ctx, templateName string, data map[string]any, layout ...string) error {
	out := &bytes.Buffer{}

	if err := h.engine.Render(out, templateName, data, layout...); err != nil {
		slog.Error("Error rendering template",
			slog.String("template", templateName),
			slog.String("error", err.Error()),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "rendering response")
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	ResponseSecurityHeaders(c)
	return c.Send(out.Bytes())
}
