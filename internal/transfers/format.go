package transfers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders a cent amount as a localised euro string, e.g.
// "€ 12,50" for Dutch. Used by statements and exports.
func FormatAmount(cents int64, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("€ %.2f", float64(cents)/100)
}

// FormatAmountNL is the default rendering for GEWIS statements.
func FormatAmountNL(cents int64) string {
	return FormatAmount(cents, language.Dutch)
}
