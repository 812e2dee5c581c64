package models

import (
	"context"
	"errors"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/utils"
	"gorm.io/gorm"
)

// User is a staff account (inspector or agency back office). Authentication
// itself lives in the excluded routing layer; this model exists so signatures
// and approvals can reference an acting user.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      string    `gorm:"size:30;not null;default:inspector" json:"role"`
	AgencyId  *int      `gorm:"index" json:"agency_id"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
	AgencyId *int   `json:"agency_id"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = "inspector"
	}
	user := User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashed),
		Role:     role,
		AgencyId: input.AgencyId,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.ConflictError("email %s already registered", input.Email)
		}
		return nil, err
	}
	return &user, nil
}

// SignIn checks credentials and returns a signed jwt for the staff surface.
func SignIn(ctx context.Context, email, password string) (string, error) {
	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", utils.NotFoundError("no account for %s", email)
		}
		return "", err
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", utils.ForbiddenError("account is disabled")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", utils.ForbiddenError("invalid credentials")
	}
	return utils.JwtGenerate(user.ID, user.Role)
}

func GetUser(ctx context.Context, id int) (*User, error) {
	var result User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.NotFoundError("user %d not found", id)
	}
	return &result, nil
}
