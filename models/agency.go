package models

import (
	"context"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
)

type Agency struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAgency struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func CreateAgency(ctx context.Context, input *NewAgency) (*Agency, error) {
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.InvalidInputError("agency email is not valid")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.InvalidInputError("agency phone: %v", err)
		}
	}

	agency := Agency{
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
		Address: input.Address,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&agency).Error; err != nil {
		return nil, err
	}
	return &agency, nil
}

func GetAgency(ctx context.Context, id int) (*Agency, error) {
	var result Agency
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.NotFoundError("agency %d not found", id)
	}
	return &result, nil
}
