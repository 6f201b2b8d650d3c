package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
	openAPIJSON = sync.OnceValues(func() ([]byte, error) {
		var doc interface{}
		if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse openapi.yaml: %w", err)
		}
		return json.Marshal(doc)
	})
	openAPIETag = sync.OnceValue(func() string {
		sum := sha256.Sum256(openAPIYAML)
		return `"` + hex.EncodeToString(sum[:8]) + `"`
	})
)

// OpenAPIDocument returns the canvas API description as JSON
func OpenAPIDocument() ([]byte, error) {
	return openAPIJSON()
}

// OpenAPIHandler serves the canvas API description. JSON is chosen with
// ?format=json or an Accept header naming JSON, YAML otherwise. The
// document is embedded, so its ETag never changes within one build.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		etag := openAPIETag()
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Add("Vary", "Accept")
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if !wantsJSON(r) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(openAPIYAML)
			return
		}
		body, err := OpenAPIDocument()
		if err != nil {
			http.Error(w, "API description unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func wantsJSON(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "json":
		return true
	case "yaml", "yml":
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "json")
}

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Canvas API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
</head>
<body>
    <div id="docs"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({url: %q, dom_id: "#docs", deepLinking: true});
        };
    </script>
</body>
</html>`

// DocsHandler serves a browsable page for the description at specURL
func DocsHandler(specURL string) http.HandlerFunc {
	page := []byte(fmt.Sprintf(docsPage, specURL+"?format=json"))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}
