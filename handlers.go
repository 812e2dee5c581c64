package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/utils"
	"github.com/habitaflow/rentals_backend/workflow"
)

// httpStatusFor maps the error taxonomy onto HTTP statuses. Everything the
// taxonomy does not classify is a 500.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, utils.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatusFor(err), gin.H{"error": utils.ErrorMessage(err)})
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// --- auth ---

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func signInHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		token, err := models.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// --- agencies / properties ---

func createAgencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAgency
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		agency, err := models.CreateAgency(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, agency)
	}
}

func getAgencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		agency, err := models.GetAgency(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, agency)
	}
}

func createPropertyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProperty
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		property, err := models.CreateProperty(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, property)
	}
}

func getPropertyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		property, err := models.GetProperty(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, property)
	}
}

// --- inspections ---

func createInspectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInspection
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		inspection, err := models.CreateInspection(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, inspection)
	}
}

func getInspectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		inspection, err := models.GetInspection(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inspection)
	}
}

func updateInspectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input models.UpdateInspectionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		inspection, err := models.UpdateInspection(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inspection)
	}
}

// --- signatures ---

func signatureStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		status, err := workflow.GetSignatureStatus(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func applySignatureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		signerType := models.SignerType(c.Param("signerType"))

		var input workflow.SignatureInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input.ClientIP = c.ClientIP()
		input.UserAgent = c.Request.UserAgent()

		ctx, span := tracer.Start(c.Request.Context(), "workflow.ApplySignature")
		defer span.End()
		outcome, err := workflow.ApplySignature(ctx, id, signerType, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

func finalizeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "workflow.Finalize")
		defer span.End()
		if err := workflow.Finalize(ctx, id); err != nil {
			respondError(c, err)
			return
		}
		inspection, err := models.GetInspection(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inspection)
	}
}

func approveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		actorId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if err := workflow.Approve(c.Request.Context(), id, actorId); err != nil {
			respondError(c, err)
			return
		}
		inspection, err := models.GetInspection(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inspection)
	}
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func rejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a rejection reason is required"})
			return
		}
		actorId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if err := workflow.Reject(c.Request.Context(), id, actorId, req.Reason); err != nil {
			respondError(c, err)
			return
		}
		inspection, err := models.GetInspection(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inspection)
	}
}

func listAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		entries, err := models.ListInspectionAudit(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// --- signature links ---

func createSignatureLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input models.NewSignatureLink
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := models.CreateSignatureLink(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		c.JSON(status, result)
	}
}

func revokeSignatureLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if err := models.RevokeSignatureLink(c.Request.Context(), token); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- documents ---

func renderProvisionalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		inspection, err := workflow.RenderProvisional(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"provisional_hash":     inspection.ProvisionalHash,
			"provisional_pdf_path": inspection.ProvisionalPdfPath,
		})
	}
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		variant := models.DocumentVariant(c.Param("variant"))
		bytes, err := workflow.GetStoredDocument(c.Request.Context(), id, variant)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", bytes)
	}
}

func rerenderFinalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		bytes, err := workflow.RerenderFinal(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", bytes)
	}
}

// --- public verification surface ---

func verificationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.GetVerificationSummary(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type verifyHashRequest struct {
	Digest string `json:"digest" binding:"required"`
}

func verifyHashHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyHashRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "digest is required"})
			return
		}
		result, err := models.VerifyHashByToken(c.Request.Context(), c.Param("token"), req.Digest)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

const maxVerificationUpload = 20 << 20 // 20 MB

func verifyUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, _, err := c.Request.FormFile("document")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'document' is required"})
			return
		}
		defer file.Close()

		fileBytes, err := io.ReadAll(io.LimitReader(file, maxVerificationUpload+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded document"})
			return
		}
		if len(fileBytes) > maxVerificationUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded document exceeds the size limit"})
			return
		}

		result, err := models.ValidateUploadedDocument(c.Request.Context(), c.Param("token"), fileBytes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// --- public signing surface ---

func signingContextHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sctx, err := models.GetSigningContext(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sctx)
	}
}

func validateLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		validation, err := models.ValidateSignatureLink(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondError(c, err)
			return
		}
		// The signer-facing classification is the payload; identifiers stay
		// internal on this unauthenticated surface.
		c.JSON(http.StatusOK, gin.H{
			"valid":   validation.Valid,
			"expired": validation.Expired,
			"used":    validation.Used,
			"message": validation.Message,
		})
	}
}

func signViaLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.SignatureInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input.ClientIP = c.ClientIP()
		input.UserAgent = c.Request.UserAgent()

		outcome, err := workflow.ApplySignatureViaLink(c.Request.Context(), c.Param("token"), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// outboxReplayHandler requeues one DEAD/FAILED outbox row for another publish
// attempt. Ops tooling, admin only.
type outboxReplayRequest struct {
	RecordId int `json:"record_id" binding:"required"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.NotificationOutbox{}).
			Where("id = ?", req.RecordId).
			Updates(map[string]interface{}{
				"publish_status":  models.OutboxPublishStatusFailed,
				"next_attempt_at": &now,
				"claimed_at":      nil,
				"claimed_by":      nil,
				"last_error":      nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"record_id":      req.RecordId,
			"publish_status": models.OutboxPublishStatusFailed,
		})
	}
}
