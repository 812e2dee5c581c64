package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// RegisterRow is one line of the inspection register: the flat listing an
// agency keeps of every inspection, its lifecycle state and its integrity
// anchor.
type RegisterRow struct {
	InspectionId      int              `json:"inspection_id"`
	PublicToken       string           `json:"public_token"`
	Type              string           `json:"type"`
	Status            string           `json:"status"`
	PropertyReference string           `json:"property_reference"`
	Address           string           `json:"address"`
	City              string           `json:"city"`
	ScheduledAt       time.Time        `json:"scheduled_at"`
	HashFinal         *string          `json:"hash_final"`
	ReportGeneratedAt *time.Time       `json:"report_generated_at"`
	ItemCount         int              `json:"item_count"`
	RepairCostTotal   *decimal.Decimal `json:"repair_cost_total"`
}

// GetInspectionRegister returns every inspection scheduled inside [from, to),
// newest first.
func GetInspectionRegister(ctx context.Context, from, to time.Time) ([]*RegisterRow, error) {
	sql := `
SELECT
    inspections.id AS inspection_id,
    inspections.public_token,
    inspections.type,
    inspections.status,
    inspections.scheduled_at,
    inspections.hash_final,
    inspections.report_generated_at,
    properties.reference AS property_reference,
    properties.address,
    properties.city,
    agg.item_count,
    agg.repair_cost_total
FROM
    inspections
    LEFT JOIN properties ON properties.id = inspections.property_id
    LEFT JOIN (
        SELECT
            inspection_id,
            COUNT(id) AS item_count,
            SUM(repair_cost_est) AS repair_cost_total
        FROM
            inspection_items
        GROUP BY
            inspection_id
    ) AS agg ON agg.inspection_id = inspections.id
WHERE
    inspections.scheduled_at >= ? AND inspections.scheduled_at < ?
ORDER BY
    inspections.scheduled_at DESC;
`

	var rows []*RegisterRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, from, to).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var registerHeadings = []string{
	"Reference", "Type", "Status", "Property", "Address", "City",
	"Scheduled", "Final Hash", "Report Generated", "Items", "Repair Cost Est.",
}

// ExportRegisterExcel writes the register rows to an xlsx file.
func ExportRegisterExcel(rows []*RegisterRow, filename string) error {
	f := excelize.NewFile()
	sheetName := "Register"
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	col := 'A'
	for _, h := range registerHeadings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	for i, row := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+rowNo, row.PublicToken)
		f.SetCellValue(sheetName, "B"+rowNo, row.Type)
		f.SetCellValue(sheetName, "C"+rowNo, row.Status)
		f.SetCellValue(sheetName, "D"+rowNo, row.PropertyReference)
		f.SetCellValue(sheetName, "E"+rowNo, row.Address)
		f.SetCellValue(sheetName, "F"+rowNo, row.City)
		f.SetCellValue(sheetName, "G"+rowNo, row.ScheduledAt.UTC().Format("2006-01-02"))
		f.SetCellValue(sheetName, "H"+rowNo, utils.DereferencePtr(row.HashFinal, ""))
		if row.ReportGeneratedAt != nil {
			f.SetCellValue(sheetName, "I"+rowNo, row.ReportGeneratedAt.UTC().Format(time.RFC3339))
		}
		f.SetCellValue(sheetName, "J"+rowNo, row.ItemCount)
		if row.RepairCostTotal != nil {
			f.SetCellValue(sheetName, "K"+rowNo, row.RepairCostTotal.StringFixed(2))
		}
	}

	return f.SaveAs(filename)
}
