package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// registerDocs mounts the HTML documentation pages. The OpenAPI document itself
// is served by huma at /openapi.json and /openapi.yaml.
func registerDocs(router chi.Router) {
	router.Get("/docs", htmlPage("api", docsHTML))
	router.Get("/docs/relay", htmlPage("relay", relayDocsHTML))
}

func htmlPage(name, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write([]byte(body)); err != nil {
			slog.Debug("docs response write failed", "page", name, "error", err)
		}
	}
}

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>tabaudio Control API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; background: #0d1117; }
    header {
      display: flex; gap: 18px; align-items: center;
      height: 40px; padding: 0 16px; flex: none;
      background: #161b22; border-bottom: 1px solid #30363d;
      font: 500 12px -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
    }
    header b { color: #e6edf3; }
    header a { color: #58a6ff; text-decoration: none; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <header>
    <b>tabaudio</b>
    <a href="/docs/relay">Relay &amp; Events</a>
    <a href="/openapi.yaml">openapi.yaml</a>
    <a href="/health">health</a>
  </header>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    hideExport
    darkMode
  />
</body>
</html>`
