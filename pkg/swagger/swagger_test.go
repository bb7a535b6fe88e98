package swagger

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(Handler(cfg))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, string, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestHandler_ServesUIAndSpec(t *testing.T) {
	app := newApp(Config{Spec: []byte("openapi: 3.0.3\n"), Title: "Portfolio <API>"})

	status, ctype, body := get(t, app, "/docs")
	assert.Equal(t, 200, status)
	assert.Contains(t, ctype, "text/html")
	assert.Contains(t, body, "openapi.yaml")
	assert.Contains(t, body, "Portfolio &lt;API&gt;", "title is escaped")

	status, ctype, body = get(t, app, "/docs/openapi.yaml")
	assert.Equal(t, 200, status)
	assert.Equal(t, "application/x-yaml", ctype)
	assert.Equal(t, "openapi: 3.0.3\n", body)
}

func TestHandler_PassesThroughOtherPaths(t *testing.T) {
	app := newApp(Config{BasePath: "/api-docs/"})

	status, _, body := get(t, app, "/health")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body)

	status, _, _ = get(t, app, "/api-docs")
	assert.Equal(t, 200, status)

	status, _, _ = get(t, app, "/api-docs/openapi.yaml")
	assert.Equal(t, 404, status, "no spec configured")
}
