// Package templates renders the server-side pages of the dashboard.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// Page is the static metadata of the dashboard page.
type Page struct {
	Title   string
	RunID   string
	Source  string
	Version string
}

// Dashboard renders the single-page dashboard. Panels start empty and are
// filled by the /sse/refresh-all stream once the page loads.
func Dashboard(page Page) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(page.Title)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</title><script type="module" src="`+datastarScript+`"></script>`+
			`<style>`+styles+`</style></head>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<body data-signals="{monthlyData: [], forecastData: [], productsData: [], regionsData: [], seasonalData: [], segmentsData: []}"`+
			` data-init="@get('/sse/refresh-all')"><header><h1>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(page.Title)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</h1><p class="meta">run <code>`+templ.EscapeString(page.RunID)+
			`</code> from <code>`+templ.EscapeString(page.Source)+`</code> &middot; v`+
			templ.EscapeString(page.Version)+`</p></header>`); err != nil {
			return err
		}
		_, err := io.WriteString(w, body)
		return err
	})
}

const body = `<main>
<section><h2>Overview</h2><div id="summary-content" class="kpi-grid">Loading...</div></section>
<section class="split">
<div><h2>Monthly sales</h2><div id="monthly-content"></div>
<ol class="bars" data-effect="el.innerHTML = window.retailbi.bars($monthlyData, 'month', 'total_sales')"></ol></div>
<div><h2>Forecast</h2><div id="forecast-content"></div>
<ol class="bars" data-effect="el.innerHTML = window.retailbi.bars($forecastData, 'month', 'predicted_sales')"></ol></div>
</section>
<section class="split">
<div><h2>Top products</h2><ol class="bars" data-effect="el.innerHTML = window.retailbi.bars($productsData, 'key', 'total_sales')"></ol></div>
<div><h2>Regions</h2><ol class="bars" data-effect="el.innerHTML = window.retailbi.bars($regionsData, 'key', 'total_sales')"></ol></div>
</section>
<section><h2>Frequently bought together</h2><div id="associations-content">Loading...</div></section>
<section><h2>Customer segments</h2><div id="segments-content">Loading...</div></section>
<section><h2>Insights</h2><div id="insights-content">Loading...</div></section>
<button data-on-click="@get('/sse/refresh-all')">Refresh</button>
</main>
<script>
window.retailbi = {
  bars(rows, label, value) {
    if (!rows || rows.length === 0) return '';
    const max = Math.max(...rows.map(r => r[value]));
    return rows.map(r => {
      const pct = max > 0 ? Math.max(0, r[value]) / max * 100 : 0;
      return '<li><span>' + r[label] + '</span><i style="width:' + pct.toFixed(1) + '%"></i><b>' + r[value].toFixed(2) + '</b></li>';
    }).join('');
  },
};
</script>
</body></html>`

const styles = `
body{font-family:system-ui,sans-serif;margin:0;background:#f5f6f8;color:#1f2933}
header{background:#1f2933;color:#fff;padding:1rem 2rem}
header .meta{opacity:.7;font-size:.85rem}
main{padding:1rem 2rem;display:grid;gap:1.5rem}
section{background:#fff;border-radius:8px;padding:1rem 1.5rem;box-shadow:0 1px 3px rgba(0,0,0,.08)}
.split{display:grid;grid-template-columns:1fr 1fr;gap:2rem}
.kpi-grid{display:grid;grid-template-columns:repeat(6,1fr);gap:1rem}
.kpi span{display:block;font-size:.8rem;color:#616e7c}
.kpi strong{font-size:1.4rem}
.modern-table{width:100%;border-collapse:collapse}
.modern-table th,.modern-table td{padding:.4rem .6rem;border-bottom:1px solid #e4e7eb;text-align:left}
.category-badge{background:#e3f2fd;border-radius:4px;padding:.1rem .4rem}
.bars{list-style:none;padding:0;margin:0}
.bars li{display:grid;grid-template-columns:8rem 1fr 6rem;align-items:center;gap:.5rem;font-size:.85rem}
.bars i{display:block;height:.8rem;background:#3e7bfa;border-radius:2px}
.unavailable{color:#9b2c2c;background:#fff5f5;padding:.5rem;border-radius:4px}
`
