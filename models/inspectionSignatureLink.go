package models

import (
	"context"
	"errors"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// DefaultSignatureLinkTTLHours is the validity window for external signing
// links when the caller does not override it.
const DefaultSignatureLinkTTLHours = 48

// InspectionSignatureLink is a single-use capability token that lets an
// unauthenticated party sign one inspection in one role.
type InspectionSignatureLink struct {
	ID           int `gorm:"primary_key" json:"id"`
	InspectionId int `gorm:"index;not null" json:"inspection_id"`

	Token       string     `gorm:"size:64;uniqueIndex;not null" json:"token"`
	SignerType  SignerType `gorm:"size:20;not null" json:"signer_type"`
	SignerEmail string     `gorm:"size:255;not null" json:"signer_email"`
	SignerName  string     `gorm:"size:100" json:"signer_name"`

	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	SentAt    *time.Time `json:"sent_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsActive reports whether the link can still be handed to a signer.
func (l *InspectionSignatureLink) IsActive(now time.Time) bool {
	return l.UsedAt == nil && now.Before(l.ExpiresAt)
}

type NewSignatureLink struct {
	SignerType  SignerType `json:"signer_type" binding:"required"`
	SignerEmail string     `json:"signer_email" binding:"required,email"`
	SignerName  string     `json:"signer_name"`
	TTLHours    int        `json:"ttl_hours"`
}

// SignatureLinkResult is what the caller (and the notification email) needs.
type SignatureLinkResult struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SignatureUrl string    `json:"signature_url"`
	Reused       bool      `json:"reused"`
}

// CreateSignatureLink issues (or re-issues) the signing link for one
// (inspection, signerType). While an unused, unexpired link exists it is
// returned as-is so the same signer is never emailed divergent links.
func CreateSignatureLink(ctx context.Context, inspectionId int, input *NewSignatureLink) (*SignatureLinkResult, error) {
	if !input.SignerType.IsValid() {
		return nil, utils.InvalidInputError("unknown signer type %q", input.SignerType)
	}
	if !utils.IsValidEmail(input.SignerEmail) {
		return nil, utils.InvalidInputError("signer email is not valid")
	}

	inspection, err := GetInspection(ctx, inspectionId)
	if err != nil {
		return nil, err
	}
	if inspection.Status.IsTerminal() {
		return nil, utils.ForbiddenError("inspection %d is %s; no further signatures can be collected", inspectionId, inspection.Status)
	}

	ttl := input.TTLHours
	if ttl <= 0 {
		ttl = DefaultSignatureLinkTTLHours
	}

	now := time.Now().UTC()

	// The find-then-create dedup runs under the per-inspection advisory lock;
	// without it two concurrent calls both miss the lookup and both insert.
	var result *SignatureLinkResult
	err = WithInspectionLock(ctx, inspectionId, func(tx *gorm.DB) error {
		var existing InspectionSignatureLink
		findErr := tx.Where("inspection_id = ? AND signer_type = ? AND used_at IS NULL AND expires_at > ?",
			inspectionId, input.SignerType, now).
			Order("expires_at DESC").
			First(&existing).Error
		if findErr == nil {
			result = &SignatureLinkResult{
				Token:        existing.Token,
				ExpiresAt:    existing.ExpiresAt,
				SignatureUrl: config.BuildSignatureURL(existing.Token),
				Reused:       true,
			}
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		token, err := utils.GenerateLinkToken()
		if err != nil {
			return err
		}
		link := InspectionSignatureLink{
			InspectionId: inspectionId,
			Token:        token,
			SignerType:   input.SignerType,
			SignerEmail:  input.SignerEmail,
			SignerName:   input.SignerName,
			ExpiresAt:    now.Add(time.Duration(ttl) * time.Hour),
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		signatureUrl := config.BuildSignatureURL(token)
		if err := appendInspectionAudit(tx, inspectionId, AuditActionLinkCreated, actorFromContext(ctx), AuditDetails{
			SignerType: string(input.SignerType),
			LinkToken:  token,
			Extra:      map[string]string{"signer_email": input.SignerEmail},
		}); err != nil {
			return err
		}
		if err := EnqueueNotification(ctx, tx, inspectionId, NotificationEventLinkCreated, map[string]interface{}{
			"signer_type":   input.SignerType,
			"signer_email":  input.SignerEmail,
			"signer_name":   input.SignerName,
			"signature_url": signatureUrl,
			"expires_at":    link.ExpiresAt,
			"link_id":       link.ID,
		}); err != nil {
			return err
		}

		result = &SignatureLinkResult{
			Token:        token,
			ExpiresAt:    link.ExpiresAt,
			SignatureUrl: signatureUrl,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LinkValidation is the three-way validate outcome: not found, expired and
// already-used are distinct cases because the signer needs different
// messaging for each.
type LinkValidation struct {
	Valid   bool   `json:"valid"`
	Expired bool   `json:"expired"`
	Used    bool   `json:"used"`
	Message string `json:"message"`

	InspectionId int        `json:"inspection_id,omitempty"`
	SignerType   SignerType `json:"signer_type,omitempty"`
	SignerEmail  string     `json:"signer_email,omitempty"`
	SignerName   string     `json:"signer_name,omitempty"`
}

// ValidateSignatureLink classifies a link token without mutating anything.
func ValidateSignatureLink(ctx context.Context, token string) (*LinkValidation, error) {
	link, err := GetSignatureLinkByToken(ctx, token)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return &LinkValidation{Message: "signature link not found"}, nil
		}
		return nil, err
	}
	if link.UsedAt != nil {
		return &LinkValidation{Used: true, Message: "signature link has already been used"}, nil
	}
	if !time.Now().UTC().Before(link.ExpiresAt) {
		return &LinkValidation{Expired: true, Message: "signature link has expired"}, nil
	}
	return &LinkValidation{
		Valid:        true,
		Message:      "signature link is valid",
		InspectionId: link.InspectionId,
		SignerType:   link.SignerType,
		SignerEmail:  link.SignerEmail,
		SignerName:   link.SignerName,
	}, nil
}

func GetSignatureLinkByToken(ctx context.Context, token string) (*InspectionSignatureLink, error) {
	var link InspectionSignatureLink
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("token = ?", token).First(&link).Error; err != nil {
		return nil, utils.NotFoundError("no signature link for this token")
	}
	return &link, nil
}

// ConsumeSignatureLink marks the link used with a guarded UPDATE. Of two
// concurrent consumers exactly one succeeds; the loser sees "already used".
func ConsumeSignatureLink(tx *gorm.DB, token string, usedAt time.Time) error {
	res := tx.Model(&InspectionSignatureLink{}).
		Where("token = ? AND used_at IS NULL", token).
		UpdateColumn("used_at", usedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var link InspectionSignatureLink
		if err := tx.Where("token = ?", token).First(&link).Error; err != nil {
			return utils.NotFoundError("no signature link for this token")
		}
		return utils.ConflictError("signature link has already been used")
	}
	return nil
}

// RevokeSignatureLink force-expires one unused link.
func RevokeSignatureLink(ctx context.Context, token string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link InspectionSignatureLink
		if err := tx.Where("token = ?", token).First(&link).Error; err != nil {
			return utils.NotFoundError("no signature link for this token")
		}
		if link.UsedAt != nil {
			return utils.ConflictError("signature link has already been used")
		}
		res := tx.Model(&InspectionSignatureLink{}).
			Where("id = ? AND used_at IS NULL", link.ID).
			UpdateColumn("expires_at", time.Now().UTC().Add(-time.Minute))
		if res.Error != nil {
			return res.Error
		}
		return appendInspectionAudit(tx, link.InspectionId, AuditActionLinkRevoked, actorFromContext(ctx), AuditDetails{
			SignerType: string(link.SignerType),
			LinkToken:  link.Token,
		})
	})
}

// RevokeAllSignatureLinks force-expires every unused link of an inspection.
// Runs in the caller's transaction: the inspection was edited or reached a
// terminal status, so outstanding links no longer match its content.
func RevokeAllSignatureLinks(tx *gorm.DB, inspectionId int) error {
	return tx.Model(&InspectionSignatureLink{}).
		Where("inspection_id = ? AND used_at IS NULL AND expires_at > ?", inspectionId, time.Now().UTC()).
		UpdateColumn("expires_at", time.Now().UTC().Add(-time.Minute)).Error
}

// MarkSignatureLinkSent stamps sent_at after the notification collaborator
// accepted the message. Called by the outbox dispatcher, not request code.
func MarkSignatureLinkSent(tx *gorm.DB, linkId int, at time.Time) error {
	return tx.Model(&InspectionSignatureLink{}).
		Where("id = ? AND sent_at IS NULL", linkId).
		UpdateColumn("sent_at", at).Error
}
