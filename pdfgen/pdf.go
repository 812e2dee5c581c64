// Package pdfgen assembles the canonical byte representation of an
// inspection. Output must be byte-deterministic for identical input data:
// the content hash of the rendered document is the integrity anchor third
// parties verify against, so two renders of the same state have to hash
// identically. Everything time-like in the output comes from RenderData,
// never from the wall clock.
package pdfgen

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
)

type Variant string

const (
	VariantProvisional Variant = "provisional"
	VariantFinal       Variant = "final"
)

// PartyBlock is one signature block on the document.
type PartyBlock struct {
	Role         string
	Name         string
	SignedAt     *time.Time
	SignaturePNG []byte // normalized signature image; nil when unsigned
}

// ItemLine is one inspected element row.
type ItemLine struct {
	Room      string
	Label     string
	Condition string
	Comment   string
}

// RenderData is the full input of a render. The caller decides GeneratedAt
// once and persists it; re-renders for display pass the stored value back in
// so the bytes reproduce exactly.
type RenderData struct {
	PublicToken     string
	InspectionType  string
	PropertyAddress string
	City            string
	ScheduledAt     time.Time
	GeneratedAt     time.Time
	Notes           string

	Items   []ItemLine
	Parties []PartyBlock

	VerificationURL string
}

// Render produces the document bytes for the given variant.
func Render(data RenderData, variant Variant) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Fixed metadata timestamps keep the output independent of render time.
	pdf.SetCreationDate(data.GeneratedAt.UTC())
	pdf.SetModificationDate(data.GeneratedAt.UTC())
	pdf.SetTitle(fmt.Sprintf("Inspection %s", data.PublicToken), false)
	pdf.SetAuthor("Habitaflow", false)

	pdf.AddPage()
	if variant == VariantProvisional {
		drawWatermark(pdf)
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Property Inspection Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Reference: %s", data.PublicToken), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Details", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Type: %s", data.InspectionType), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Property: %s, %s", data.PropertyAddress, data.City), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", data.ScheduledAt.UTC().Format("2006-01-02")), "", 1, "L", false, 0, "")
	if data.Notes != "" {
		pdf.MultiCell(0, 6, fmt.Sprintf("Notes: %s", data.Notes), "", "L", false)
	}
	pdf.Ln(4)

	drawItems(pdf, data.Items)
	drawParties(pdf, data.Parties)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 5, fmt.Sprintf("Verify this document at %s", data.VerificationURL), "", "L", false)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", data.GeneratedAt.UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawWatermark(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 60)
	pdf.SetTextColor(230, 230, 230)
	pdf.TransformBegin()
	pdf.TransformRotate(45, 105, 148)
	pdf.Text(40, 160, "PROVISIONAL")
	pdf.TransformEnd()
	pdf.SetTextColor(0, 0, 0)
}

func drawItems(pdf *gofpdf.Fpdf, items []ItemLine) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Inspected elements", "B", 1, "L", false, 0, "")

	// Stable ordering regardless of how the caller assembled the slice.
	sorted := make([]ItemLine, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Room != sorted[j].Room {
			return sorted[i].Room < sorted[j].Room
		}
		return sorted[i].Label < sorted[j].Label
	})

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(40, 6, "Room", "1", 0, "L", false, 0, "")
	pdf.CellFormat(55, 6, "Element", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, "Condition", "1", 0, "L", false, 0, "")
	pdf.CellFormat(70, 6, "Comment", "1", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range sorted {
		pdf.CellFormat(40, 6, item.Room, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, item.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, item.Condition, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, item.Comment, "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func drawParties(pdf *gofpdf.Fpdf, parties []PartyBlock) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Signatures", "B", 1, "L", false, 0, "")
	pdf.Ln(2)

	for idx, party := range parties {
		pdf.SetFont("Helvetica", "B", 10)
		label := party.Role
		if party.Name != "" {
			label = fmt.Sprintf("%s - %s", party.Role, party.Name)
		}
		pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")

		if party.SignedAt != nil && len(party.SignaturePNG) > 0 {
			imgName := fmt.Sprintf("sig-%d", idx)
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(party.SignaturePNG))
			x := pdf.GetX()
			y := pdf.GetY()
			pdf.ImageOptions(imgName, x, y, 50, 0, false, opts, 0, "")
			pdf.SetY(y + 22)
			pdf.SetFont("Helvetica", "", 8)
			pdf.CellFormat(0, 5, fmt.Sprintf("Signed %s", party.SignedAt.UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")
		} else {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 6, "Not signed", "", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}
}
