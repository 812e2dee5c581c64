package models

// InspectionType distinguishes move-in and move-out inspections. The type is
// part of the public token (HAB-<TYPE>-<YEAR>-XXXX-XXXX).
type InspectionType string

const (
	InspectionTypeMoveIn  InspectionType = "MOVEIN"
	InspectionTypeMoveOut InspectionType = "MOVEOUT"
)

func (t InspectionType) String() string {
	return string(t)
}

func (t InspectionType) IsValid() bool {
	switch t {
	case InspectionTypeMoveIn, InspectionTypeMoveOut:
		return true
	}
	return false
}

// InspectionStatus is the lifecycle state of an inspection.
type InspectionStatus string

const (
	InspectionStatusDraft             InspectionStatus = "DRAFT"
	InspectionStatusInProgress        InspectionStatus = "IN_PROGRESS"
	InspectionStatusAwaitingSignature InspectionStatus = "AWAITING_SIGNATURE"
	InspectionStatusCompleted         InspectionStatus = "COMPLETED"
	InspectionStatusApproved          InspectionStatus = "APPROVED"
	InspectionStatusRejected          InspectionStatus = "REJECTED"
)

func (s InspectionStatus) String() string {
	return string(s)
}

func (s InspectionStatus) IsValid() bool {
	switch s {
	case InspectionStatusDraft, InspectionStatusInProgress, InspectionStatusAwaitingSignature,
		InspectionStatusCompleted, InspectionStatusApproved, InspectionStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further field mutation is permitted.
func (s InspectionStatus) IsTerminal() bool {
	return s == InspectionStatusApproved || s == InspectionStatusRejected
}

// SignerType is one of the four roles that may have to sign an inspection.
type SignerType string

const (
	SignerTypeInspector SignerType = "inspector"
	SignerTypeOwner     SignerType = "owner"
	SignerTypeTenant    SignerType = "tenant"
	SignerTypeAgency    SignerType = "agency"
)

// AllSignerTypes is the fixed iteration order used everywhere signatures are
// listed or rendered. Deterministic ordering matters for document hashing.
var AllSignerTypes = []SignerType{SignerTypeInspector, SignerTypeOwner, SignerTypeTenant, SignerTypeAgency}

func (s SignerType) String() string {
	return string(s)
}

func (s SignerType) IsValid() bool {
	switch s {
	case SignerTypeInspector, SignerTypeOwner, SignerTypeTenant, SignerTypeAgency:
		return true
	}
	return false
}

// ItemCondition grades one inspected element.
type ItemCondition string

const (
	ItemConditionNew     ItemCondition = "NEW"
	ItemConditionGood    ItemCondition = "GOOD"
	ItemConditionWorn    ItemCondition = "WORN"
	ItemConditionDamaged ItemCondition = "DAMAGED"
	ItemConditionMissing ItemCondition = "MISSING"
)

func (c ItemCondition) IsValid() bool {
	switch c {
	case ItemConditionNew, ItemConditionGood, ItemConditionWorn, ItemConditionDamaged, ItemConditionMissing:
		return true
	}
	return false
}

// DocumentVariant selects a stored rendering of an inspection.
type DocumentVariant string

const (
	DocumentVariantProvisional DocumentVariant = "provisional"
	DocumentVariantFinal       DocumentVariant = "final"
)

func (v DocumentVariant) IsValid() bool {
	return v == DocumentVariantProvisional || v == DocumentVariantFinal
}

// Audit actions recorded by the signature subsystem.
const (
	AuditActionSignedByInspector   = "SIGNED_BY_INSPECTOR"
	AuditActionSignedByOwner       = "SIGNED_BY_OWNER"
	AuditActionSignedByTenant      = "SIGNED_BY_TENANT"
	AuditActionSignedByAgency      = "SIGNED_BY_AGENCY"
	AuditActionSignedViaLinkSuffix = "_VIA_LINK"
	AuditActionFinalized           = "FINALIZED"
	AuditActionApproved            = "APPROVED"
	AuditActionRejected            = "REJECTED"
	AuditActionLinkCreated         = "SIGNATURE_LINK_CREATED"
	AuditActionLinkRevoked         = "SIGNATURE_LINK_REVOKED"
)

// AuditActionSigned returns the audit action for a signer type, with the
// _VIA_LINK suffix for external signers.
func AuditActionSigned(signerType SignerType, viaLink bool) string {
	var base string
	switch signerType {
	case SignerTypeInspector:
		base = AuditActionSignedByInspector
	case SignerTypeOwner:
		base = AuditActionSignedByOwner
	case SignerTypeTenant:
		base = AuditActionSignedByTenant
	case SignerTypeAgency:
		base = AuditActionSignedByAgency
	default:
		base = "SIGNED_BY_UNKNOWN"
	}
	if viaLink {
		return base + AuditActionSignedViaLinkSuffix
	}
	return base
}

// Outbox publish lifecycle (see NotificationOutbox).
type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusPublished  OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

// Notification event types published for the notification collaborator.
const (
	NotificationEventLinkCreated         = "SIGNATURE_LINK_CREATED"
	NotificationEventInspectionFinalized = "INSPECTION_FINALIZED"
	NotificationEventInspectionApproved  = "INSPECTION_APPROVED"
	NotificationEventInspectionRejected  = "INSPECTION_REJECTED"
)
