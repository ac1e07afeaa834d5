package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Operation documents one route. Routes registered on echo without an
// Operation are still listed with a generated summary.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tag         string
	RequestBody string
	Response    string
	Public      bool
}

// Generator builds an OpenAPI 3.0 document from the routes of an echo
// instance.
type Generator struct {
	title      string
	version    string
	baseURL    string
	operations map[string]Operation
	schemas    map[string]map[string]interface{}
}

// NewGenerator creates a new OpenAPI document generator.
func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{
		title:      title,
		version:    version,
		baseURL:    baseURL,
		operations: make(map[string]Operation),
		schemas:    make(map[string]map[string]interface{}),
	}
}

// Describe attaches documentation to routes.
func (g *Generator) Describe(ops ...Operation) {
	for _, op := range ops {
		g.operations[op.Method+" "+op.Path] = op
	}
}

// AddSchema registers a named component schema.
func (g *Generator) AddSchema(name string, schema map[string]interface{}) {
	g.schemas[name] = schema
}

// GenerateSpec produces the OpenAPI 3.0 document for routes.
func (g *Generator) GenerateSpec(routes []*echo.Route) map[string]interface{} {
	sorted := make([]*echo.Route, 0, len(routes))
	for _, r := range routes {
		if r.Method == echo.RouteNotFound || r.Method == "" {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Method < sorted[j].Method
	})

	paths := make(map[string]interface{})
	for _, r := range sorted {
		op, ok := g.operations[r.Method+" "+r.Path]
		if !ok {
			op = Operation{Method: r.Method, Path: r.Path, Summary: r.Method + " " + r.Path}
		}
		path, params := convertPath(r.Path)
		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}
		item[strings.ToLower(r.Method)] = g.buildOperation(op, params)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": g.schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

func (g *Generator) buildOperation(op Operation, params []string) map[string]interface{} {
	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(op.Method, op.Path),
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}
	if len(params) > 0 {
		list := make([]map[string]interface{}, 0, len(params))
		for _, p := range params {
			list = append(list, map[string]interface{}{
				"name": p, "in": "path", "required": true, "schema": map[string]string{"type": "string"},
			})
		}
		out["parameters"] = list
	}
	if op.RequestBody != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref(op.RequestBody)},
			},
		}
	}
	success := map[string]interface{}{"description": "Success"}
	if op.Response != "" {
		success["content"] = map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(op.Response)},
		}
	}
	out["responses"] = map[string]interface{}{"200": success}
	if op.Public {
		out["security"] = []map[string][]string{}
	}
	return out
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

// convertPath rewrites echo's :param segments to OpenAPI {param} form.
func convertPath(path string) (string, []string) {
	segments := strings.Split(path, "/")
	var params []string
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			params = append(params, s[1:])
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, s := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '-' || r == ':' }) {
		b.WriteString(strings.ToUpper(s[:1]) + s[1:])
	}
	return b.String()
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Epicare Triage API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/openapi.json", dom_id: '#swagger-ui', deepLinking: true })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints. The document lists every
// route on e at request time.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec(e.Routes()))
	})
	e.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
