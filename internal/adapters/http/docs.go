package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Region Stats API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.json', dom_id: '#swagger-ui', deepLinking: true, tryItOutEnabled: true});
  </script>
</body>
</html>`

// OpenAPIPath is where the OpenAPI document is read from, relative to the
// working directory.
var OpenAPIPath = "api/openapi.yaml"

// apiDocument loads and validates the OpenAPI document on first use. A
// missing or invalid document disables the docs routes, not the API.
type apiDocument struct {
	once sync.Once
	raw  []byte
	json []byte
	err  error
}

func (d *apiDocument) load() error {
	d.once.Do(func() {
		raw, err := os.ReadFile(OpenAPIPath)
		if err != nil {
			d.err = err
			return
		}
		doc, err := openapi3.NewLoader().LoadFromData(raw)
		if err != nil {
			d.err = fmt.Errorf("parse %s: %w", OpenAPIPath, err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			d.err = fmt.Errorf("validate %s: %w", OpenAPIPath, err)
			return
		}
		d.raw = raw
		d.json, d.err = json.Marshal(doc)
	})
	return d.err
}

// SetupDocs registers Swagger UI at /docs and the document at
// /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App) {
	doc := &apiDocument{}

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	serve := func(asJSON bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if err := doc.load(); err != nil {
				slog.Warn("openapi document unavailable", "path", OpenAPIPath, "error", err)
				return errNotFound(c, "openapi document not available")
			}
			if asJSON {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Send(doc.json)
			}
			c.Set(fiber.HeaderContentType, "application/yaml")
			return c.Send(doc.raw)
		}
	}
	app.Get("/docs/openapi.yaml", serve(false))
	app.Get("/docs/openapi.json", serve(true))
}
