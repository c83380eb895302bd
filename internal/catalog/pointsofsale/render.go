package pointsofsale

import (
	"fmt"
	"html"
	"strings"
)

// ReportTitle names the revision sheet.
func (r Revision) ReportTitle() string {
	return fmt.Sprintf("Point of sale %d, revision %d", r.PointOfSaleID, r.Revision)
}

// ReportBody renders the snapshot and its bound container revisions.
func (r Revision) ReportBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Name: %s</p>", html.EscapeString(r.Name))
	fmt.Fprintf(&b, "<p>Authentication required: %t</p>", r.UseAuthentication)
	b.WriteString("<table><tr><th>Container</th><th>Revision</th></tr>")
	for _, ref := range r.ContainerRefs {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td></tr>", ref.ID, ref.Revision)
	}
	b.WriteString("</table>")
	return b.String()
}
