package syndicateapi

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/c360studio/sangam/storage"
)

// writeStatute renders the Smart-Statute for sy as a single Letter page.
func writeStatute(w io.Writer, sy *storage.Syndicate, terms []string) error {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetTitle("SANGAM: Smart-Statute", true)
	pdf.SetAuthor("SANGAM", true)
	pdf.SetCreator("sangam", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(72, 72, "SANGAM: Smart-Statute")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(72, 112, tr("Syndicate: "+sy.Title))
	pdf.Text(72, 132, tr("Lead Founder: "+sy.FounderName))
	pdf.Text(72, 152, "Funding Goal: $"+sy.FundingGoal.StringFixed(2))

	pdf.Text(72, 192, "Standardized Terms:")
	y := 212.0
	for i, term := range terms {
		pdf.Text(92, y, tr(fmt.Sprintf("%d. %s", i+1, term)))
		y += 20
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render statute: %w", err)
	}
	return pdf.Output(w)
}
