package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// InspectionAudit is the append-only trail of signature and approval events.
// Rows are written in the same transaction as the mutation they record and
// are never updated or deleted by this subsystem.
type InspectionAudit struct {
	ID            int       `gorm:"primary_key" json:"id"`
	InspectionId  int       `gorm:"index;not null" json:"inspection_id"`
	Action        string    `gorm:"size:50;not null" json:"action"`
	PerformedBy   int       `gorm:"index" json:"performed_by"`
	PerformerName string    `gorm:"size:100" json:"performer_name"`
	PerformedAt   time.Time `gorm:"autoCreateTime;index" json:"performed_at"`
	Details       string    `gorm:"type:text" json:"details"`
}

// AuditDetails is the structured payload serialized into Details.
type AuditDetails struct {
	SignerType string            `json:"signer_type,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	GeoLat     *float64          `json:"geo_lat,omitempty"`
	GeoLng     *float64          `json:"geo_lng,omitempty"`
	GeoConsent *bool             `json:"geo_consent,omitempty"`
	LinkToken  string            `json:"link_token,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type auditActor struct {
	id   int
	name string
}

func actorFromContext(ctx context.Context) auditActor {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "External signer"
	}
	return auditActor{id: userId, name: userName}
}

func appendInspectionAudit(tx *gorm.DB, inspectionId int, action string, actor auditActor, details AuditDetails) error {
	b, err := json.Marshal(details)
	if err != nil {
		return err
	}
	entry := InspectionAudit{
		InspectionId:  inspectionId,
		Action:        action,
		PerformedBy:   actor.id,
		PerformerName: actor.name,
		Details:       string(b),
	}
	return tx.Create(&entry).Error
}

// AppendInspectionAudit records an event inside the caller's transaction.
func AppendInspectionAudit(ctx context.Context, tx *gorm.DB, inspectionId int, action string, details AuditDetails) error {
	return appendInspectionAudit(tx, inspectionId, action, actorFromContext(ctx), details)
}

// ListInspectionAudit returns the trail oldest-first, the order auditors and
// reporting collaborators consume it in.
func ListInspectionAudit(ctx context.Context, inspectionId int) ([]*InspectionAudit, error) {
	var entries []*InspectionAudit
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("inspection_id = ?", inspectionId).
		Order("performed_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
