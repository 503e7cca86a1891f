package dashboard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

// placeholder is served from /data before the first window closes.
const placeholder = `{"status":"waiting","last_update":null,"stats_by_region":{}}`

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Pipeline Dashboard</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #1a1a2e; color: #eee; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; margin-top: 1rem; }
th, td { border: 1px solid #444; padding: 0.4rem 0.8rem; text-align: left; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>Event Pipeline &mdash; Latest Window</h1>
<p class="muted" id="meta">waiting for first window&hellip;</p>
<table id="stats"><thead><tr><th>Region</th><th>Source</th><th>Count</th></tr></thead><tbody></tbody></table>
<script>
async function refresh() {
  const res = await fetch('/data');
  const data = await res.json();
  const meta = document.getElementById('meta');
  const tbody = document.querySelector('#stats tbody');
  if (data.status === 'waiting') { return; }
  meta.textContent = data.window_start_iso + ' → ' + data.window_end_iso +
    ' (' + data.total_processed + ' events)';
  tbody.innerHTML = '';
  for (const [region, bySource] of Object.entries(data.stats_by_region || {})) {
    for (const [source, count] of Object.entries(bySource)) {
      const row = tbody.insertRow();
      row.insertCell().textContent = region;
      row.insertCell().textContent = source;
      row.insertCell().textContent = count;
    }
  }
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`

// NewRouter builds the dashboard HTTP surface: the HTML page and the JSON
// snapshot endpoint.
func NewRouter(snap *Snapshot, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(indexHTML)); err != nil {
			log.Error().Err(err).Msg("failed to write index")
		}
	})

	r.Get("/data", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, ok := snap.Load()
		if !ok {
			body = []byte(placeholder)
		}
		if _, err := w.Write(body); err != nil {
			log.Error().Err(err).Msg("failed to write snapshot")
		}
	})

	return r
}
