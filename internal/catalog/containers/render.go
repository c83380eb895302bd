package containers

import (
	"fmt"
	"html"
	"strings"
)

// ReportTitle names the revision sheet.
func (r Revision) ReportTitle() string {
	return fmt.Sprintf("Container %d, revision %d", r.ContainerID, r.Revision)
}

// ReportBody renders the snapshot and its bound product revisions.
func (r Revision) ReportBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Name: %s</p>", html.EscapeString(r.Name))
	b.WriteString("<table><tr><th>Product</th><th>Revision</th></tr>")
	for _, ref := range r.ProductRefs {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td></tr>", ref.ID, ref.Revision)
	}
	b.WriteString("</table>")
	return b.String()
}
