package workflow

import (
	"context"
	"slices"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// SignatureInput carries the evidence captured alongside a signature.
// Geolocation is mandatory for every signature, internal or external.
type SignatureInput struct {
	SignatureBlob string   `json:"signature" binding:"required"`
	ClientIP      string   `json:"-"`
	UserAgent     string   `json:"-"`
	GeoLat        *float64 `json:"geo_lat"`
	GeoLng        *float64 `json:"geo_lng"`
	GeoConsent    *bool    `json:"geo_consent"`
}

// SignatureOutcome reports the aggregate state after a signature was applied.
// AllComplete tells the caller whether Finalize can now run; applying a
// signature never finalizes implicitly.
type SignatureOutcome struct {
	Status      models.InspectionStatus `json:"status"`
	AllComplete bool                    `json:"all_complete"`
	Required    []models.SignerType     `json:"required"`
	Pending     []models.SignerType     `json:"pending"`
}

func validateSignatureInput(input SignatureInput) error {
	if input.SignatureBlob == "" {
		return utils.InvalidInputError("signature is required")
	}
	// Reject junk early; the blob is decoded again at render time.
	if _, err := utils.DecodeSignatureImage(input.SignatureBlob); err != nil {
		return err
	}
	if input.GeoLat == nil || input.GeoLng == nil {
		return utils.InvalidInputError("geolocation (geo_lat and geo_lng) is mandatory signature evidence")
	}
	return nil
}

func loadInspectionInTx(tx *gorm.DB, inspectionId int) (*models.Inspection, error) {
	var inspection models.Inspection
	err := tx.
		Preload("Property").Preload("Agency").Preload("Inspector").Preload("Items").
		First(&inspection, inspectionId).Error
	if err != nil {
		return nil, utils.NotFoundError("inspection %d not found", inspectionId)
	}
	return &inspection, nil
}

// ApplySignature records one party's signature on an inspection.
//
// Preconditions are checked and the party's field group written in a single
// transaction under the per-inspection advisory lock, so two concurrent
// attempts for the same party produce exactly one success and one Conflict.
// The duplicate-signature case is a hard error, not a silent no-op: a second
// attempt for an already-signed party is either a client bug or a disputed
// re-signing, and both must be visible.
func ApplySignature(ctx context.Context, inspectionId int, signerType models.SignerType, input SignatureInput) (*SignatureOutcome, error) {
	if !signerType.IsValid() {
		return nil, utils.InvalidInputError("unknown signer type %q", signerType)
	}
	if err := validateSignatureInput(input); err != nil {
		return nil, err
	}
	return applySignatureTx(ctx, inspectionId, signerType, input, "")
}

// applySignatureTx is shared by the authenticated and the link-based paths.
// linkToken, when non-empty, is consumed inside the same transaction and
// recorded in the audit details.
func applySignatureTx(ctx context.Context, inspectionId int, signerType models.SignerType, input SignatureInput, linkToken string) (*SignatureOutcome, error) {
	var outcome *SignatureOutcome
	var publicToken string

	// The advisory lock is held across the commit so the next holder always
	// reads committed state.
	err := models.WithInspectionLock(ctx, inspectionId, func(tx *gorm.DB) error {
		// Consume the link before touching signature fields: of two racing
		// link submissions the loser must see "already used", and a rollback
		// leaves the link unconsumed when the signature write fails.
		now := time.Now().UTC()
		if linkToken != "" {
			if err := models.ConsumeSignatureLink(tx, linkToken, now); err != nil {
				return err
			}
		}

		inspection, err := loadInspectionInTx(tx, inspectionId)
		if err != nil {
			return err
		}
		if inspection.Status == models.InspectionStatusApproved {
			return utils.ForbiddenError("inspection %d is approved; signing a finalized record is not allowed", inspectionId)
		}
		if inspection.Status == models.InspectionStatusRejected {
			return utils.ForbiddenError("inspection %d is rejected and blocked for signing", inspectionId)
		}

		required := inspection.RequiredSigners()
		if !slices.Contains(required, signerType) {
			return utils.InvalidInputError("inspection %d has no %s party to sign", inspectionId, signerType)
		}

		signedAt := now
		ps := models.PartySignature{
			Signature:       input.SignatureBlob,
			SignedAt:        &signedAt,
			SignedIP:        input.ClientIP,
			SignedUserAgent: input.UserAgent,
			GeoLat:          input.GeoLat,
			GeoLng:          input.GeoLng,
			GeoConsent:      input.GeoConsent,
		}
		if err := models.ApplyPartySignature(tx, inspectionId, signerType, ps); err != nil {
			return err
		}

		status := inspection.Status
		if status == models.InspectionStatusDraft || status == models.InspectionStatusInProgress {
			status = models.InspectionStatusAwaitingSignature
			if err := tx.Model(&models.Inspection{}).
				Where("id = ?", inspectionId).
				UpdateColumn("status", status).Error; err != nil {
				return err
			}
		}

		if err := models.AppendInspectionAudit(ctx, tx, inspectionId,
			models.AuditActionSigned(signerType, linkToken != ""),
			models.AuditDetails{
				SignerType: string(signerType),
				ClientIP:   input.ClientIP,
				UserAgent:  input.UserAgent,
				GeoLat:     input.GeoLat,
				GeoLng:     input.GeoLng,
				GeoConsent: input.GeoConsent,
				LinkToken:  linkToken,
			}); err != nil {
			return err
		}

		// Recompute completeness with the just-written group applied.
		applyInMemory(inspection, signerType, ps)
		outcome = &SignatureOutcome{
			Status:      status,
			AllComplete: inspection.AllRequiredSigned(),
			Required:    required,
			Pending:     inspection.PendingSigners(),
		}
		publicToken = inspection.PublicToken
		return nil
	})
	if err != nil {
		return nil, err
	}

	models.InvalidateVerificationSummary(publicToken)
	return outcome, nil
}

func applyInMemory(inspection *models.Inspection, signerType models.SignerType, ps models.PartySignature) {
	switch signerType {
	case models.SignerTypeInspector:
		inspection.InspectorSign = ps
	case models.SignerTypeOwner:
		inspection.OwnerSign = ps
	case models.SignerTypeTenant:
		inspection.TenantSign = ps
	case models.SignerTypeAgency:
		inspection.AgencySign = ps
	}
}

// ApplySignatureViaLink is the public-surface variant: the capability token
// decides who is signing, and external signers must affirmatively consent to
// geolocation capture (internal staff consent via the platform ToS).
func ApplySignatureViaLink(ctx context.Context, linkToken string, input SignatureInput) (*SignatureOutcome, error) {
	validation, err := models.ValidateSignatureLink(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	switch {
	case validation.Used:
		return nil, utils.ConflictError("signature link has already been used")
	case validation.Expired:
		return nil, utils.ExpiredError("signature link has expired")
	case !validation.Valid:
		return nil, utils.NotFoundError("no signature link for this token")
	}

	if input.GeoConsent == nil || !*input.GeoConsent {
		return nil, utils.InvalidInputError("external signers must consent to geolocation capture")
	}
	if err := validateSignatureInput(input); err != nil {
		return nil, err
	}

	return applySignatureTx(ctx, validation.InspectionId, validation.SignerType, input, linkToken)
}

// finalizeInTx runs the finalization unit: render the final document, anchor
// its hash, move to COMPLETED and record the audit entry, all inside the
// caller's transaction and lock.
func finalizeInTx(ctx context.Context, tx *gorm.DB, inspection *models.Inspection) error {
	if inspection.HashFinal != nil {
		return utils.ConflictError("inspection %d is already finalized", inspection.ID)
	}
	if pending := inspection.PendingSigners(); len(pending) > 0 {
		return utils.InvalidInputError("inspection %d is missing required signatures: %v", inspection.ID, pending)
	}

	generatedAt := time.Now().UTC().Truncate(time.Second)
	if err := renderFinalInTx(ctx, tx, inspection, generatedAt); err != nil {
		return err
	}

	if err := tx.Model(&models.Inspection{}).
		Where("id = ?", inspection.ID).
		UpdateColumn("status", models.InspectionStatusCompleted).Error; err != nil {
		return err
	}

	if err := models.AppendInspectionAudit(ctx, tx, inspection.ID, models.AuditActionFinalized, models.AuditDetails{}); err != nil {
		return err
	}
	return models.EnqueueNotification(ctx, tx, inspection.ID, models.NotificationEventInspectionFinalized, map[string]interface{}{
		"public_token": inspection.PublicToken,
		"generated_at": generatedAt,
	})
}

// Finalize renders the final document once every required party has signed.
// It is a separate, explicit step: rendering is expensive and
// non-idempotent, so it is triggered by an explicit actor rather than
// implicitly by the last signature.
func Finalize(ctx context.Context, inspectionId int) error {
	var publicToken string
	err := models.WithInspectionLock(ctx, inspectionId, func(tx *gorm.DB) error {
		inspection, err := loadInspectionInTx(tx, inspectionId)
		if err != nil {
			return err
		}
		if inspection.Status.IsTerminal() {
			return utils.ForbiddenError("inspection %d is %s", inspectionId, inspection.Status)
		}
		publicToken = inspection.PublicToken
		return finalizeInTx(ctx, tx, inspection)
	})
	if err != nil {
		return err
	}
	models.InvalidateVerificationSummary(publicToken)
	return nil
}

// Approve freezes the record permanently. When no final hash exists yet it
// finalizes first (lazy finalize-on-approve) unless REQUIRE_EXPLICIT_FINALIZE
// turns the fallback off.
func Approve(ctx context.Context, inspectionId int, actorId int) error {
	var publicToken string
	err := models.WithInspectionLock(ctx, inspectionId, func(tx *gorm.DB) error {
		inspection, err := loadInspectionInTx(tx, inspectionId)
		if err != nil {
			return err
		}
		if inspection.Status == models.InspectionStatusApproved {
			return utils.ConflictError("inspection %d is already approved", inspectionId)
		}
		if inspection.Status == models.InspectionStatusRejected {
			return utils.ForbiddenError("inspection %d was rejected and cannot be approved", inspectionId)
		}
		publicToken = inspection.PublicToken

		if inspection.HashFinal == nil {
			if config.RequireExplicitFinalize() {
				return utils.InvalidInputError("inspection %d must be finalized before approval", inspectionId)
			}
			if err := finalizeInTx(ctx, tx, inspection); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Inspection{}).
			Where("id = ?", inspectionId).
			Updates(map[string]interface{}{
				"status":      models.InspectionStatusApproved,
				"approved_by": actorId,
				"approved_at": now,
			}).Error; err != nil {
			return err
		}

		if err := models.AppendInspectionAudit(ctx, tx, inspectionId, models.AuditActionApproved, models.AuditDetails{}); err != nil {
			return err
		}
		return models.EnqueueNotification(ctx, tx, inspectionId, models.NotificationEventInspectionApproved, map[string]interface{}{
			"public_token": inspection.PublicToken,
			"approved_by":  actorId,
		})
	})
	if err != nil {
		return err
	}
	models.InvalidateVerificationSummary(publicToken)
	return nil
}

// Reject is the negative review outcome. Like approval it operates on a
// fully-signed record (finalizing first when needed), which keeps the
// invariant that every terminal-status inspection carries a final hash.
func Reject(ctx context.Context, inspectionId int, actorId int, reason string) error {
	if reason == "" {
		return utils.InvalidInputError("a rejection reason is required")
	}

	var publicToken string
	err := models.WithInspectionLock(ctx, inspectionId, func(tx *gorm.DB) error {
		inspection, err := loadInspectionInTx(tx, inspectionId)
		if err != nil {
			return err
		}
		if inspection.Status == models.InspectionStatusApproved {
			return utils.ForbiddenError("inspection %d is approved and cannot be rejected", inspectionId)
		}
		if inspection.Status == models.InspectionStatusRejected {
			return utils.ConflictError("inspection %d is already rejected", inspectionId)
		}
		if !inspection.AllRequiredSigned() {
			return utils.ForbiddenError("inspection %d cannot be rejected before all required parties signed", inspectionId)
		}
		publicToken = inspection.PublicToken

		if inspection.HashFinal == nil {
			if err := finalizeInTx(ctx, tx, inspection); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Inspection{}).
			Where("id = ?", inspectionId).
			Updates(map[string]interface{}{
				"status":          models.InspectionStatusRejected,
				"rejected_by":     actorId,
				"rejected_at":     now,
				"rejected_reason": reason,
			}).Error; err != nil {
			return err
		}

		// The record is now terminal; any link still circulating must die.
		if err := models.RevokeAllSignatureLinks(tx, inspectionId); err != nil {
			return err
		}

		if err := models.AppendInspectionAudit(ctx, tx, inspectionId, models.AuditActionRejected, models.AuditDetails{Reason: reason}); err != nil {
			return err
		}
		return models.EnqueueNotification(ctx, tx, inspectionId, models.NotificationEventInspectionRejected, map[string]interface{}{
			"public_token": inspection.PublicToken,
			"rejected_by":  actorId,
			"reason":       reason,
		})
	})
	if err != nil {
		return err
	}
	models.InvalidateVerificationSummary(publicToken)
	return nil
}

// SignatureStatus is the pure read side of the state machine. The required
// set is recomputed fresh on every call; it can legitimately change while
// the inspection is still unsigned (e.g. a tenant is attached to the
// property after creation).
type SignatureStatus struct {
	Status      models.InspectionStatus      `json:"status"`
	PerParty    map[models.SignerType]bool   `json:"per_party"`
	AllComplete bool                         `json:"all_complete"`
	Required    []models.SignerType          `json:"required"`
	Pending     []models.SignerType          `json:"pending"`
}

func GetSignatureStatus(ctx context.Context, inspectionId int) (*SignatureStatus, error) {
	inspection, err := models.GetInspection(ctx, inspectionId)
	if err != nil {
		return nil, err
	}

	perParty := make(map[models.SignerType]bool, len(models.AllSignerTypes))
	for _, st := range models.AllSignerTypes {
		perParty[st] = inspection.SignatureOf(st).IsSigned()
	}

	return &SignatureStatus{
		Status:      inspection.Status,
		PerParty:    perParty,
		AllComplete: inspection.AllRequiredSigned(),
		Required:    inspection.RequiredSigners(),
		Pending:     inspection.PendingSigners(),
	}, nil
}
