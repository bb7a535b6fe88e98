// Package swagger serves an OpenAPI document and a Swagger UI page for it.
//
// Usage:
//
//	app.Use(swagger.Handler(swagger.Config{
//	    Spec:  handler.OpenAPI,
//	    Title: "Portfolio Tracker API",
//	}))
//
// The UI lives at BasePath and the document at BasePath + "/openapi.yaml".
package swagger

import (
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	// Spec is the OpenAPI document in YAML.
	Spec []byte

	// Title shown in the browser tab
	Title string

	// BasePath is where the UI is served, "/docs" by default.
	BasePath string
}

const specFile = "/openapi.yaml"

var page = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
    <style>
        body { margin: 0; background: #fafafa; }
        .swagger-ui .topbar { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: '#swagger-ui',
                deepLinking: true,
                persistAuthorization: true,
                displayRequestDuration: true,
                filter: true
            });
        };
    </script>
</body>
</html>`))

// Handler serves the UI and the document, and passes every other path on.
func Handler(config Config) fiber.Handler {
	if config.Title == "" {
		config.Title = "API Documentation"
	}
	if config.BasePath == "" {
		config.BasePath = "/docs"
	}
	config.BasePath = strings.TrimRight(config.BasePath, "/")

	var html strings.Builder
	if err := page.Execute(&html, map[string]string{
		"Title":   config.Title,
		"SpecURL": config.BasePath + specFile,
	}); err != nil {
		panic("swagger: failed to render page: " + err.Error())
	}
	rendered := html.String()

	return func(c *fiber.Ctx) error {
		switch c.Path() {
		case config.BasePath, config.BasePath + "/":
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.SendString(rendered)
		case config.BasePath + specFile:
			if len(config.Spec) == 0 {
				return c.Status(fiber.StatusNotFound).SendString("Spec not found")
			}
			c.Set(fiber.HeaderContentType, "application/x-yaml")
			return c.Send(config.Spec)
		}
		return c.Next()
	}
}
