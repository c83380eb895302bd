package products

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReportTitle names the revision sheet.
func (r Revision) ReportTitle() string {
	return fmt.Sprintf("Product %d, revision %d", r.ProductID, r.Revision)
}

// ReportBody renders the snapshot as an HTML table.
func (r Revision) ReportBody() string {
	p := message.NewPrinter(language.Dutch)
	var b strings.Builder
	b.WriteString("<table>")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", label, html.EscapeString(value))
	}
	row("Name", r.Name)
	row("Price", p.Sprintf("€ %.2f", float64(r.PriceCents)/100))
	row("VAT", fmt.Sprintf("%d%%", r.VatPercent))
	row("Category", r.Category)
	row("Alcohol", fmt.Sprintf("%d%%", r.AlcoholPerc))
	row("Published", r.CreatedAt.Format("2006-01-02 15:04"))
	b.WriteString("</table>")
	return b.String()
}
