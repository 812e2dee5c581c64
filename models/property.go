package models

import (
	"context"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
)

// Property is the rented unit an inspection describes. Owner and tenant are
// optional contact groups; their presence drives the required-signer set of
// every inspection attached to the property.
type Property struct {
	ID         int    `gorm:"primary_key" json:"id"`
	Reference  string `gorm:"size:50;uniqueIndex" json:"reference"`
	Address    string `gorm:"size:255;not null" json:"address"`
	City       string `gorm:"size:100" json:"city"`
	PostalCode string `gorm:"size:20" json:"postal_code"`

	OwnerName  *string `gorm:"size:100" json:"owner_name"`
	OwnerEmail *string `gorm:"size:255" json:"owner_email"`
	OwnerPhone *string `gorm:"size:30" json:"owner_phone"`

	TenantName  *string `gorm:"size:100" json:"tenant_name"`
	TenantEmail *string `gorm:"size:255" json:"tenant_email"`
	TenantPhone *string `gorm:"size:30" json:"tenant_phone"`

	AgencyId *int    `gorm:"index" json:"agency_id"`
	Agency   *Agency `json:"agency"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasOwner reports whether the property has an owner party attached.
func (p *Property) HasOwner() bool {
	return p.OwnerName != nil && *p.OwnerName != ""
}

// HasTenant reports whether the property currently has a tenant.
func (p *Property) HasTenant() bool {
	return p.TenantName != nil && *p.TenantName != ""
}

// ShortAddress is the fragment exposed on the public verification summary.
// Deliberately omits the full address line for privacy.
func (p *Property) ShortAddress() string {
	if p.City == "" {
		return p.PostalCode
	}
	if p.PostalCode == "" {
		return p.City
	}
	return p.City + " " + p.PostalCode
}

type NewProperty struct {
	Reference  string `json:"reference" binding:"required"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`

	OwnerName  *string `json:"owner_name"`
	OwnerEmail *string `json:"owner_email"`
	OwnerPhone *string `json:"owner_phone"`

	TenantName  *string `json:"tenant_name"`
	TenantEmail *string `json:"tenant_email"`
	TenantPhone *string `json:"tenant_phone"`

	AgencyId *int `json:"agency_id"`
}

func CreateProperty(ctx context.Context, input *NewProperty) (*Property, error) {
	if input.OwnerPhone != nil && *input.OwnerPhone != "" {
		if err := utils.ValidatePhoneNumber(*input.OwnerPhone, utils.CountryCode); err != nil {
			return nil, utils.InvalidInputError("owner phone: %v", err)
		}
	}
	if input.TenantPhone != nil && *input.TenantPhone != "" {
		if err := utils.ValidatePhoneNumber(*input.TenantPhone, utils.CountryCode); err != nil {
			return nil, utils.InvalidInputError("tenant phone: %v", err)
		}
	}
	if input.OwnerEmail != nil && *input.OwnerEmail != "" && !utils.IsValidEmail(*input.OwnerEmail) {
		return nil, utils.InvalidInputError("owner email is not valid")
	}
	if input.TenantEmail != nil && *input.TenantEmail != "" && !utils.IsValidEmail(*input.TenantEmail) {
		return nil, utils.InvalidInputError("tenant email is not valid")
	}

	property := Property{
		Reference:   input.Reference,
		Address:     input.Address,
		City:        input.City,
		PostalCode:  input.PostalCode,
		OwnerName:   input.OwnerName,
		OwnerEmail:  input.OwnerEmail,
		OwnerPhone:  input.OwnerPhone,
		TenantName:  input.TenantName,
		TenantEmail: input.TenantEmail,
		TenantPhone: input.TenantPhone,
		AgencyId:    input.AgencyId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&property).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.ConflictError("property reference %s already exists", input.Reference)
		}
		return nil, err
	}
	return &property, nil
}

func GetProperty(ctx context.Context, id int) (*Property, error) {
	var result Property
	db := config.GetDB()
	if err := db.WithContext(ctx).Preload("Agency").First(&result, id).Error; err != nil {
		return nil, utils.NotFoundError("property %d not found", id)
	}
	return &result, nil
}
