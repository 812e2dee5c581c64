package models

import (
	"time"

	"github.com/habitaflow/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InspectionItem is one inspected element (room + item + condition). Items
// are owned exclusively by one inspection and replaced as a batch on edit;
// there is no per-item update path.
type InspectionItem struct {
	ID           int `gorm:"primary_key" json:"id"`
	InspectionId int `gorm:"index;not null" json:"inspection_id"`

	Room      string        `gorm:"size:100;not null" json:"room"`
	Label     string        `gorm:"size:150;not null" json:"label"`
	Condition ItemCondition `gorm:"size:20;not null" json:"condition"`
	Comment   string        `gorm:"size:500" json:"comment"`

	NeedsRepair       *bool            `json:"needs_repair"`
	RepairDescription string           `gorm:"size:500" json:"repair_description"`
	RepairCostEst     *decimal.Decimal `gorm:"type:decimal(12,2)" json:"repair_cost_est"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewInspectionItem struct {
	Room      string        `json:"room" binding:"required"`
	Label     string        `json:"label" binding:"required"`
	Condition ItemCondition `json:"condition" binding:"required"`
	Comment   string        `json:"comment"`

	NeedsRepair       *bool            `json:"needs_repair"`
	RepairDescription string           `json:"repair_description"`
	RepairCostEst     *decimal.Decimal `json:"repair_cost_est"`
}

func mapNewInspectionItems(input []NewInspectionItem) ([]InspectionItem, error) {
	var items []InspectionItem
	for idx, in := range input {
		if !in.Condition.IsValid() {
			return nil, utils.InvalidInputError("item %d: unknown condition %q", idx, in.Condition)
		}
		items = append(items, InspectionItem{
			Room:              in.Room,
			Label:             in.Label,
			Condition:         in.Condition,
			Comment:           in.Comment,
			NeedsRepair:       in.NeedsRepair,
			RepairDescription: in.RepairDescription,
			RepairCostEst:     in.RepairCostEst,
		})
	}
	return items, nil
}

// ReplaceInspectionItems swaps the full item set inside the caller's
// transaction (delete then recreate; acceptable pre-signature only, which the
// caller has already checked).
func ReplaceInspectionItems(tx *gorm.DB, inspectionId int, items []InspectionItem) error {
	if err := tx.Where("inspection_id = ?", inspectionId).Delete(&InspectionItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ID = 0
		items[i].InspectionId = inspectionId
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}
