package report

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Renderable is the capability an aggregate snapshot needs to appear on a
// report sheet. Implemented by the catalog revision types; anything else can
// opt in by providing the same two methods.
type Renderable interface {
	ReportTitle() string
	// ReportBody returns an HTML fragment. Implementations are responsible
	// for escaping user-controlled values.
	ReportBody() string
}

// SheetHTML wraps a Renderable into a complete printable page.
func SheetHTML(r Renderable) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\">")
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(r.ReportTitle()))
	b.WriteString("</title>")
	b.WriteString("<style>body{font-family:sans-serif;margin:2cm}table{border-collapse:collapse}td,th{border:1px solid #999;padding:4px 8px;text-align:left}</style>")
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(r.ReportTitle()))
	b.WriteString(r.ReportBody())
	fmt.Fprintf(&b, "<footer><small>Generated at %s</small></footer>", time.Now().Format(time.RFC1123))
	b.WriteString("</body></html>")
	return b.String()
}
