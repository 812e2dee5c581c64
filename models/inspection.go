package models

import (
	"context"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// PartySignature is one party's signature group. The group is written in a
// single guarded UPDATE, so it is either fully populated or fully empty,
// never partial, and immutable once populated.
type PartySignature struct {
	Signature       string     `gorm:"type:longtext" json:"signature,omitempty"`
	SignedAt        *time.Time `json:"signed_at"`
	SignedIP        string     `gorm:"size:45" json:"signed_ip,omitempty"`
	SignedUserAgent string     `gorm:"size:255" json:"signed_user_agent,omitempty"`
	GeoLat          *float64   `json:"geo_lat,omitempty"`
	GeoLng          *float64   `json:"geo_lng,omitempty"`
	GeoConsent      *bool      `json:"geo_consent,omitempty"`
}

// IsSigned reports whether the group has been populated.
func (ps PartySignature) IsSigned() bool {
	return ps.Signature != "" && ps.SignedAt != nil
}

// Inspection is the aggregate root of the signature subsystem.
type Inspection struct {
	ID int `gorm:"primary_key" json:"id"`

	// PublicToken is the human-shareable verification handle
	// (HAB-<TYPE>-<YEAR>-XXXX-XXXX). Generated once at creation, never reused,
	// not derivable from the numeric id.
	PublicToken string `gorm:"size:40;uniqueIndex;not null" json:"public_token"`

	Type   InspectionType   `gorm:"size:20;not null" json:"type"`
	Status InspectionStatus `gorm:"size:30;not null;default:DRAFT;index" json:"status"`

	PropertyId int      `gorm:"index;not null" json:"property_id"`
	Property   Property `json:"property"`

	AgencyId *int    `gorm:"index" json:"agency_id"`
	Agency   *Agency `json:"agency"`

	InspectorId int  `gorm:"index;not null" json:"inspector_id"`
	Inspector   User `gorm:"foreignKey:InspectorId" json:"inspector"`

	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `gorm:"type:text" json:"notes"`

	Items []InspectionItem `gorm:"foreignKey:InspectionId" json:"items"`

	InspectorSign PartySignature `gorm:"embedded;embeddedPrefix:inspector_" json:"inspector_sign"`
	OwnerSign     PartySignature `gorm:"embedded;embeddedPrefix:owner_" json:"owner_sign"`
	TenantSign    PartySignature `gorm:"embedded;embeddedPrefix:tenant_" json:"tenant_sign"`
	AgencySign    PartySignature `gorm:"embedded;embeddedPrefix:agency_" json:"agency_sign"`

	ProvisionalHash    string  `gorm:"size:64" json:"provisional_hash,omitempty"`
	HashFinal          *string `gorm:"size:64" json:"hash_final,omitempty"`
	ProvisionalPdfPath string  `gorm:"size:255" json:"provisional_pdf_path,omitempty"`
	FinalPdfPath       string  `gorm:"size:255" json:"final_pdf_path,omitempty"`

	ReportGeneratedAt *time.Time `json:"report_generated_at,omitempty"`
	VerificationUrl   string     `gorm:"size:255" json:"verification_url,omitempty"`

	ApprovedBy     *int       `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedBy     *int       `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	RejectedReason string     `gorm:"size:500" json:"rejected_reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SignatureOf returns the signature group for a signer type.
func (i *Inspection) SignatureOf(signerType SignerType) PartySignature {
	switch signerType {
	case SignerTypeInspector:
		return i.InspectorSign
	case SignerTypeOwner:
		return i.OwnerSign
	case SignerTypeTenant:
		return i.TenantSign
	case SignerTypeAgency:
		return i.AgencySign
	}
	return PartySignature{}
}

// signerColumnPrefix maps a signer type to its embedded column prefix.
func signerColumnPrefix(signerType SignerType) string {
	switch signerType {
	case SignerTypeInspector:
		return "inspector_"
	case SignerTypeOwner:
		return "owner_"
	case SignerTypeTenant:
		return "tenant_"
	case SignerTypeAgency:
		return "agency_"
	}
	return ""
}

// RequiredSigners derives the required-signer set from current associations:
// the inspector always signs; owner and tenant sign iff the property has one;
// the agency signs iff the inspection has one. The caller must have loaded
// the Property association.
func (i *Inspection) RequiredSigners() []SignerType {
	required := []SignerType{SignerTypeInspector}
	if i.Property.HasOwner() {
		required = append(required, SignerTypeOwner)
	}
	if i.Property.HasTenant() {
		required = append(required, SignerTypeTenant)
	}
	if i.AgencyId != nil {
		required = append(required, SignerTypeAgency)
	}
	return required
}

// PendingSigners lists required parties that have not signed yet.
func (i *Inspection) PendingSigners() []SignerType {
	var pending []SignerType
	for _, st := range i.RequiredSigners() {
		if !i.SignatureOf(st).IsSigned() {
			pending = append(pending, st)
		}
	}
	return pending
}

// AllRequiredSigned is the dynamic "every required party signed" predicate.
func (i *Inspection) AllRequiredSigned() bool {
	return len(i.PendingSigners()) == 0
}

// HasAnySignature reports whether any party (required or not) has signed.
// Item edits are forbidden from the first signature onward.
func (i *Inspection) HasAnySignature() bool {
	for _, st := range AllSignerTypes {
		if i.SignatureOf(st).IsSigned() {
			return true
		}
	}
	return false
}

type NewInspection struct {
	Type        InspectionType      `json:"type" binding:"required"`
	PropertyId  int                 `json:"property_id" binding:"required"`
	AgencyId    *int                `json:"agency_id"`
	InspectorId int                 `json:"inspector_id" binding:"required"`
	ScheduledAt time.Time           `json:"scheduled_at"`
	Notes       string              `json:"notes"`
	Items       []NewInspectionItem `json:"items"`
}

// CreateInspection creates the aggregate with a fresh public token. Token
// collisions are vanishingly rare but handled by retrying on the unique index.
func CreateInspection(ctx context.Context, input *NewInspection) (*Inspection, error) {
	if !input.Type.IsValid() {
		return nil, utils.InvalidInputError("unknown inspection type %q", input.Type)
	}
	if _, err := GetProperty(ctx, input.PropertyId); err != nil {
		return nil, err
	}
	if input.AgencyId != nil {
		if _, err := GetAgency(ctx, *input.AgencyId); err != nil {
			return nil, err
		}
	}
	if _, err := GetUser(ctx, input.InspectorId); err != nil {
		return nil, err
	}

	items, err := mapNewInspectionItems(input.Items)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var inspection Inspection
	for attempt := 0; attempt < 3; attempt++ {
		token, err := utils.GeneratePublicToken(input.Type.String(), time.Now())
		if err != nil {
			return nil, err
		}
		inspection = Inspection{
			PublicToken: token,
			Type:        input.Type,
			Status:      InspectionStatusDraft,
			PropertyId:  input.PropertyId,
			AgencyId:    input.AgencyId,
			InspectorId: input.InspectorId,
			ScheduledAt: input.ScheduledAt,
			Notes:       input.Notes,
			Items:       items,
		}
		inspection.VerificationUrl = config.BuildVerificationURL(token)

		err = db.WithContext(ctx).Create(&inspection).Error
		if err == nil {
			return &inspection, nil
		}
		if !utils.IsDuplicateKeyErr(err) {
			return nil, err
		}
	}
	return nil, utils.InternalError("could not allocate a unique inspection token")
}

type UpdateInspectionInput struct {
	ScheduledAt *time.Time          `json:"scheduled_at"`
	Notes       *string             `json:"notes"`
	Items       []NewInspectionItem `json:"items"`
}

// UpdateInspection edits a pre-signature inspection. Items are replaced as a
// batch (delete then recreate). Any existing signature, or a status at
// COMPLETED or beyond, blocks the edit. Outstanding signature links are
// revoked because they were issued against the previous content.
func UpdateInspection(ctx context.Context, id int, input *UpdateInspectionInput) (*Inspection, error) {
	items, err := mapNewInspectionItems(input.Items)
	if err != nil {
		return nil, err
	}

	// The guards run inside the locked transaction: checked outside, a
	// signature committing between check and write would let an edit land on
	// a signed inspection.
	var stalePdfPath string
	err = WithInspectionLock(ctx, id, func(tx *gorm.DB) error {
		var inspection Inspection
		if err := tx.First(&inspection, id).Error; err != nil {
			return utils.NotFoundError("inspection %d not found", id)
		}
		if inspection.Status.IsTerminal() || inspection.Status == InspectionStatusCompleted {
			return utils.ForbiddenError("inspection %d is %s and can no longer be edited", id, inspection.Status)
		}
		if inspection.HasAnySignature() {
			return utils.ForbiddenError("inspection %d already carries a signature; editing is locked", id)
		}

		updates := map[string]interface{}{"status": InspectionStatusInProgress}
		if input.ScheduledAt != nil {
			updates["scheduled_at"] = *input.ScheduledAt
		}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
		}
		// A provisional render of the previous content no longer matches.
		if inspection.ProvisionalPdfPath != "" {
			stalePdfPath = inspection.ProvisionalPdfPath
			updates["provisional_hash"] = ""
			updates["provisional_pdf_path"] = ""
		}
		if err := tx.Model(&Inspection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if input.Items != nil {
			if err := ReplaceInspectionItems(tx, id, items); err != nil {
				return err
			}
		}
		return RevokeAllSignatureLinks(tx, id)
	})
	if err != nil {
		return nil, err
	}

	// Best effort: the columns are already cleared, a leftover object is
	// unreachable garbage.
	if stalePdfPath != "" {
		if err := utils.DeleteObjectFromGCS(ctx, stalePdfPath); err != nil {
			config.LogError(config.GetLogger(), "inspection.go", "UpdateInspection", "Failed to delete stale provisional document", stalePdfPath, err)
		}
	}
	return GetInspection(ctx, id)
}

func GetInspection(ctx context.Context, id int) (*Inspection, error) {
	var result Inspection
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Property").Preload("Agency").Preload("Inspector").Preload("Items").
		First(&result, id).Error
	if err != nil {
		return nil, utils.NotFoundError("inspection %d not found", id)
	}
	return &result, nil
}

// GetInspectionByPublicToken is the anonymous lookup used by the public
// verification surface. The primary key is never exposed there.
func GetInspectionByPublicToken(ctx context.Context, publicToken string) (*Inspection, error) {
	var result Inspection
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Property").Preload("Agency").Preload("Inspector").Preload("Items").
		Where("public_token = ?", publicToken).
		First(&result).Error
	if err != nil {
		return nil, utils.NotFoundError("no inspection for token %s", publicToken)
	}
	return &result, nil
}

// ApplyPartySignature writes one party's full signature group with a guarded
// UPDATE that re-checks "not yet signed" inside the statement. Exactly one of
// two concurrent attempts for the same party can succeed; the loser gets a
// Conflict.
func ApplyPartySignature(tx *gorm.DB, inspectionId int, signerType SignerType, ps PartySignature) error {
	prefix := signerColumnPrefix(signerType)
	if prefix == "" {
		return utils.InvalidInputError("unknown signer type %q", signerType)
	}

	res := tx.Model(&Inspection{}).
		Where("id = ?", inspectionId).
		Where("("+prefix+"signature IS NULL OR "+prefix+"signature = '')").
		Updates(map[string]interface{}{
			prefix + "signature":         ps.Signature,
			prefix + "signed_at":         ps.SignedAt,
			prefix + "signed_ip":         ps.SignedIP,
			prefix + "signed_user_agent": ps.SignedUserAgent,
			prefix + "geo_lat":           ps.GeoLat,
			prefix + "geo_lng":           ps.GeoLng,
			prefix + "geo_consent":       ps.GeoConsent,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ConflictError("%s has already signed inspection %d", signerType, inspectionId)
	}
	return nil
}

// StoreProvisionalHash records the digest of the latest provisional render.
// Provisional renders may be repeated, so this overwrites freely.
func StoreProvisionalHash(tx *gorm.DB, inspectionId int, digest string) error {
	return tx.Model(&Inspection{}).
		Where("id = ?", inspectionId).
		UpdateColumn("provisional_hash", digest).Error
}

// StoreFinalHash sets hash_final at most once. A second write is a Conflict,
// never a silent overwrite: the first digest may already be in a third
// party's hands.
func StoreFinalHash(tx *gorm.DB, inspectionId int, digest string) error {
	res := tx.Model(&Inspection{}).
		Where("id = ?", inspectionId).
		Where("hash_final IS NULL").
		UpdateColumn("hash_final", digest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ConflictError("inspection %d already has a final hash", inspectionId)
	}
	return nil
}
