package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/pdfgen"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// renderTimeout bounds the only slow step in this subsystem. A timeout is
// surfaced as a retryable Internal error, never left hanging.
const renderTimeout = 30 * time.Second

func documentObjectName(inspectionId int, variant models.DocumentVariant) string {
	return fmt.Sprintf("inspections/%d/%s.pdf", inspectionId, variant)
}

// buildRenderData flattens the aggregate into the renderer's input. Parties
// always appear in the fixed signer order so the byte stream is stable.
func buildRenderData(inspection *models.Inspection, generatedAt time.Time) (pdfgen.RenderData, error) {
	data := pdfgen.RenderData{
		PublicToken:     inspection.PublicToken,
		InspectionType:  inspection.Type.String(),
		PropertyAddress: inspection.Property.Address,
		City:            inspection.Property.City,
		ScheduledAt:     inspection.ScheduledAt,
		GeneratedAt:     generatedAt,
		Notes:           inspection.Notes,
		VerificationURL: config.BuildVerificationURL(inspection.PublicToken),
	}

	for _, item := range inspection.Items {
		data.Items = append(data.Items, pdfgen.ItemLine{
			Room:      item.Room,
			Label:     item.Label,
			Condition: string(item.Condition),
			Comment:   item.Comment,
		})
	}

	for _, st := range inspection.RequiredSigners() {
		block := pdfgen.PartyBlock{
			Role: st.String(),
			Name: partyName(inspection, st),
		}
		ps := inspection.SignatureOf(st)
		if ps.IsSigned() {
			raw, err := utils.DecodeSignatureImage(ps.Signature)
			if err != nil {
				return data, err
			}
			png, err := utils.NormalizeSignatureImage(raw)
			if err != nil {
				return data, err
			}
			block.SignedAt = ps.SignedAt
			block.SignaturePNG = png
		}
		data.Parties = append(data.Parties, block)
	}
	return data, nil
}

func partyName(inspection *models.Inspection, signerType models.SignerType) string {
	switch signerType {
	case models.SignerTypeInspector:
		return inspection.Inspector.Name
	case models.SignerTypeOwner:
		return utils.DereferencePtr(inspection.Property.OwnerName, "")
	case models.SignerTypeTenant:
		return utils.DereferencePtr(inspection.Property.TenantName, "")
	case models.SignerTypeAgency:
		if inspection.Agency != nil {
			return inspection.Agency.Name
		}
	}
	return ""
}

// renderAndStore renders one variant, uploads the bytes and returns
// (bytes, digest). Render timeouts come back as retryable Internal errors.
func renderAndStore(ctx context.Context, inspection *models.Inspection, variant models.DocumentVariant, generatedAt time.Time) ([]byte, string, error) {
	rctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	data, err := buildRenderData(inspection, generatedAt)
	if err != nil {
		return nil, "", err
	}

	pdfVariant := pdfgen.VariantFinal
	if variant == models.DocumentVariantProvisional {
		pdfVariant = pdfgen.VariantProvisional
	}
	bytes, err := pdfgen.Render(data, pdfVariant)
	if err != nil {
		return nil, "", utils.InternalError("document rendering failed: %v", err)
	}

	objectName := documentObjectName(inspection.ID, variant)
	if err := utils.SaveDocumentToGCS(rctx, objectName, bytes, "application/pdf"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", utils.InternalError("document storage timed out; retry the operation")
		}
		return nil, "", utils.InternalError("document storage failed: %v", err)
	}

	return bytes, utils.HashBytes(bytes), nil
}

// RenderProvisional renders the watermarked pre-completion document, stores
// it and records path + provisional hash. GeneratedAt is pinned to the
// aggregate's UpdatedAt so identical data renders to identical bytes.
func RenderProvisional(ctx context.Context, inspectionId int) (*models.Inspection, error) {
	inspection, err := models.GetInspection(ctx, inspectionId)
	if err != nil {
		return nil, err
	}

	release, err := utils.ObtainRenderLock(ctx, inspectionId)
	if err != nil {
		return nil, err
	}
	defer release()

	_, digest, err := renderAndStore(ctx, inspection, models.DocumentVariantProvisional, inspection.UpdatedAt)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.StoreProvisionalHash(tx, inspectionId, digest); err != nil {
			return err
		}
		return tx.Model(&models.Inspection{}).
			Where("id = ?", inspectionId).
			UpdateColumn("provisional_pdf_path", documentObjectName(inspectionId, models.DocumentVariantProvisional)).Error
	})
	if err != nil {
		return nil, err
	}
	return models.GetInspection(ctx, inspectionId)
}

// renderFinalInTx renders the final document and commits hash, path, report
// timestamp and verification URL inside the caller's transaction. The caller
// has already confirmed the all-signed precondition and holds the
// per-inspection lock; keeping render success and DB state in one
// transaction means a failed render can never leave COMPLETED without a
// final hash.
func renderFinalInTx(ctx context.Context, tx *gorm.DB, inspection *models.Inspection, generatedAt time.Time) error {
	release, err := utils.ObtainRenderLock(ctx, inspection.ID)
	if err != nil {
		return err
	}
	defer release()

	_, digest, err := renderAndStore(ctx, inspection, models.DocumentVariantFinal, generatedAt)
	if err != nil {
		return err
	}

	if err := models.StoreFinalHash(tx, inspection.ID, digest); err != nil {
		return err
	}
	return tx.Model(&models.Inspection{}).
		Where("id = ?", inspection.ID).
		Updates(map[string]interface{}{
			"final_pdf_path":      documentObjectName(inspection.ID, models.DocumentVariantFinal),
			"report_generated_at": generatedAt,
			"verification_url":    config.BuildVerificationURL(inspection.PublicToken),
		}).Error
}

// RerenderFinal reproduces the final document bytes from stored data, e.g.
// after the stored object was lost. It reuses the persisted
// report_generated_at so the bytes (and their hash) come out identical.
func RerenderFinal(ctx context.Context, inspectionId int) ([]byte, error) {
	inspection, err := models.GetInspection(ctx, inspectionId)
	if err != nil {
		return nil, err
	}
	if inspection.HashFinal == nil || inspection.ReportGeneratedAt == nil {
		return nil, utils.InvalidInputError("inspection %d has not been finalized", inspectionId)
	}

	data, err := buildRenderData(inspection, *inspection.ReportGeneratedAt)
	if err != nil {
		return nil, err
	}
	bytes, err := pdfgen.Render(data, pdfgen.VariantFinal)
	if err != nil {
		return nil, utils.InternalError("document rendering failed: %v", err)
	}
	if digest := utils.HashBytes(bytes); !utils.DigestsEqual(digest, *inspection.HashFinal) {
		// Stored data no longer reproduces the anchored hash; surface loudly
		// instead of returning bytes a verifier would reject.
		return nil, utils.InternalError("re-rendered document does not match the stored final hash")
	}

	// The bytes match the anchored hash; restore the stored object when it
	// went missing so later reads don't need another render.
	if inspection.FinalPdfPath != "" {
		if err := utils.CheckObjectExistInGCS(ctx, inspection.FinalPdfPath); errors.Is(err, utils.ErrNotFound) {
			if saveErr := utils.SaveDocumentToGCS(ctx, inspection.FinalPdfPath, bytes, "application/pdf"); saveErr != nil {
				config.LogError(config.GetLogger(), "renderWorkflow.go", "RerenderFinal", "Failed to restore final document", inspection.FinalPdfPath, saveErr)
			}
		}
	}
	return bytes, nil
}

// GetStoredDocument retrieves a stored rendering without regenerating it.
func GetStoredDocument(ctx context.Context, inspectionId int, variant models.DocumentVariant) ([]byte, error) {
	if !variant.IsValid() {
		return nil, utils.InvalidInputError("unknown document variant %q", variant)
	}
	inspection, err := models.GetInspection(ctx, inspectionId)
	if err != nil {
		return nil, err
	}

	var path string
	switch variant {
	case models.DocumentVariantProvisional:
		path = inspection.ProvisionalPdfPath
	case models.DocumentVariantFinal:
		path = inspection.FinalPdfPath
	}
	if path == "" {
		return nil, utils.NotFoundError("no %s document stored for inspection %d", variant, inspectionId)
	}
	return utils.ReadDocumentFromGCS(ctx, path)
}
