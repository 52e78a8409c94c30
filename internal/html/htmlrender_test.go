package html

import (
	"io"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	views := fstest.MapFS{
		"views/hello.html":  {Data: []byte(`<p>{{.name}}: {{join .items ", "}}</p>`)},
		"views/broken.html": {Data: []byte(`{{template "missing" .}}`)},
	}
	r, err := NewRenderer(views, "")
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/hello", func(c *fiber.Ctx) error {
		return r.Render(c, "hello", map[string]any{"name": "<ven>", "items": []string{"a", "b"}})
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return r.Render(c, "broken", nil)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/hello", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<p>&lt;ven&gt;: a, b</p>", string(body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp, err = app.Test(httptest.NewRequest("GET", "/broken", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}
