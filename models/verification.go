package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
)

// VerificationSummary is the public, read-only projection for an inspection
// token. It deliberately excludes raw signature images, IPs, geolocation and
// full party identities.
type VerificationSummary struct {
	PublicToken string           `json:"public_token"`
	Type        InspectionType   `json:"type"`
	Status      InspectionStatus `json:"status"`
	ScheduledAt time.Time        `json:"scheduled_at"`

	AddressFragment string `json:"address_fragment"`

	SignedParties  []SignerType `json:"signed_parties"`
	PendingParties []SignerType `json:"pending_parties"`

	HashFinal         *string    `json:"hash_final,omitempty"`
	ReportGeneratedAt *time.Time `json:"report_generated_at,omitempty"`
}

const verificationCacheTTL = 2 * time.Minute

func verificationCacheKey(publicToken string) string {
	return fmt.Sprintf("verify:%s", publicToken)
}

// GetVerificationSummary builds the public projection, served from redis
// when possible. The cache is short-lived and invalidated on every status
// transition so the projection never lags a finalize/approve by long.
func GetVerificationSummary(ctx context.Context, publicToken string) (*VerificationSummary, error) {
	var cached VerificationSummary
	found, err := config.GetRedisObject(verificationCacheKey(publicToken), &cached)
	if err == nil && found {
		return &cached, nil
	}

	inspection, err := GetInspectionByPublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	var signed []SignerType
	for _, st := range AllSignerTypes {
		if inspection.SignatureOf(st).IsSigned() {
			signed = append(signed, st)
		}
	}

	summary := &VerificationSummary{
		PublicToken:       inspection.PublicToken,
		Type:              inspection.Type,
		Status:            inspection.Status,
		ScheduledAt:       inspection.ScheduledAt,
		AddressFragment:   inspection.Property.ShortAddress(),
		SignedParties:     signed,
		PendingParties:    inspection.PendingSigners(),
		HashFinal:         inspection.HashFinal,
		ReportGeneratedAt: inspection.ReportGeneratedAt,
	}

	_ = config.SetRedisObject(verificationCacheKey(publicToken), summary, verificationCacheTTL)
	return summary, nil
}

// InvalidateVerificationSummary drops the cached projection. Called after
// signatures, finalize, approve and reject.
func InvalidateVerificationSummary(publicToken string) {
	_ = config.DeleteRedisKey(verificationCacheKey(publicToken))
}

// HashVerification is the outcome of a digest comparison against the stored
// final hash.
type HashVerification struct {
	Valid          bool   `json:"valid"`
	Message        string `json:"message"`
	StoredDigest   string `json:"stored_digest,omitempty"`
	ComputedDigest string `json:"computed_digest,omitempty"`
}

// VerifyHashByToken compares a caller-provided digest with the stored final
// hash. Lookup is by public token; this path is reachable without
// authentication.
func VerifyHashByToken(ctx context.Context, publicToken, providedDigest string) (*HashVerification, error) {
	inspection, err := GetInspectionByPublicToken(ctx, publicToken)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return &HashVerification{Message: "no inspection found for this token"}, nil
		}
		return nil, err
	}
	if inspection.HashFinal == nil {
		return &HashVerification{Message: "inspection is not finalized yet; no final hash exists"}, nil
	}
	if utils.DigestsEqual(*inspection.HashFinal, providedDigest) {
		return &HashVerification{
			Valid:        true,
			Message:      "hash matches the final document",
			StoredDigest: *inspection.HashFinal,
		}, nil
	}
	return &HashVerification{
		Valid:        false,
		Message:      "hash does not match the final document",
		StoredDigest: *inspection.HashFinal,
	}, nil
}

// ValidateUploadedDocument recomputes the digest of an uploaded candidate
// document and compares it to the stored final hash. This is the
// tamper-detection entry point for third parties who received the PDF
// out-of-band.
func ValidateUploadedDocument(ctx context.Context, publicToken string, fileBytes []byte) (*HashVerification, error) {
	if len(fileBytes) == 0 {
		return nil, utils.InvalidInputError("uploaded document is empty")
	}
	computed := utils.HashBytes(fileBytes)

	inspection, err := GetInspectionByPublicToken(ctx, publicToken)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return &HashVerification{ComputedDigest: computed, Message: "no inspection found for this token"}, nil
		}
		return nil, err
	}
	if inspection.HashFinal == nil {
		return &HashVerification{ComputedDigest: computed, Message: "inspection is not finalized yet; no final hash exists"}, nil
	}
	if utils.DigestsEqual(*inspection.HashFinal, computed) {
		return &HashVerification{
			Valid:          true,
			Message:        "document is authentic and unmodified",
			StoredDigest:   *inspection.HashFinal,
			ComputedDigest: computed,
		}, nil
	}
	return &HashVerification{
		Valid:          false,
		Message:        "document does not match the finalized original",
		StoredDigest:   *inspection.HashFinal,
		ComputedDigest: computed,
	}, nil
}

// SigningContext is what a remote signer sees before signing: the content
// they are asked to approve, nothing about the other parties' evidence.
type SigningContext struct {
	InspectionToken string           `json:"inspection_token"`
	Type            InspectionType   `json:"type"`
	Status          InspectionStatus `json:"status"`
	ScheduledAt     time.Time        `json:"scheduled_at"`

	PropertyAddress string `json:"property_address"`
	OwnerName       string `json:"owner_name,omitempty"`
	TenantName      string `json:"tenant_name,omitempty"`
	AgencyName      string `json:"agency_name,omitempty"`
	InspectorName   string `json:"inspector_name"`

	SignerType  SignerType `json:"signer_type"`
	SignerEmail string     `json:"signer_email"`
	SignerName  string     `json:"signer_name,omitempty"`

	Items []SigningContextItem `json:"items"`
}

type SigningContextItem struct {
	Room      string        `json:"room"`
	Label     string        `json:"label"`
	Condition ItemCondition `json:"condition"`
	Comment   string        `json:"comment,omitempty"`
}

// GetSigningContext validates the link first, then returns the signer-facing
// view of the inspection.
func GetSigningContext(ctx context.Context, linkToken string) (*SigningContext, error) {
	validation, err := ValidateSignatureLink(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		switch {
		case validation.Used:
			return nil, utils.ConflictError("%s", validation.Message)
		case validation.Expired:
			return nil, utils.ExpiredError("%s", validation.Message)
		default:
			return nil, utils.NotFoundError("%s", validation.Message)
		}
	}

	inspection, err := GetInspection(ctx, validation.InspectionId)
	if err != nil {
		return nil, err
	}

	sctx := &SigningContext{
		InspectionToken: inspection.PublicToken,
		Type:            inspection.Type,
		Status:          inspection.Status,
		ScheduledAt:     inspection.ScheduledAt,
		PropertyAddress: inspection.Property.Address,
		OwnerName:       utils.DereferencePtr(inspection.Property.OwnerName, ""),
		TenantName:      utils.DereferencePtr(inspection.Property.TenantName, ""),
		InspectorName:   inspection.Inspector.Name,
		SignerType:      validation.SignerType,
		SignerEmail:     validation.SignerEmail,
		SignerName:      validation.SignerName,
	}
	if inspection.Agency != nil {
		sctx.AgencyName = inspection.Agency.Name
	}
	for _, item := range inspection.Items {
		sctx.Items = append(sctx.Items, SigningContextItem{
			Room:      item.Room,
			Label:     item.Label,
			Condition: item.Condition,
			Comment:   item.Comment,
		})
	}
	return sctx, nil
}
