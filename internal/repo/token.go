package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/car_rental/internal/models"
)

func (r *GormRepo) AddOutstanding(ctx context.Context, t *models.OutstandingToken) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("add outstanding token: %w", err)
	}
	return nil
}

func (r *GormRepo) FindOutstandingByJTI(ctx context.Context, jti string) (*models.OutstandingToken, error) {
	var t models.OutstandingToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) IsBlacklisted(ctx context.Context, tokenID uint) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.BlacklistedToken{}).Where("token_id = ?", tokenID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return n > 0, nil
}

// Blacklist is get-or-create: created is false when the token was already revoked.
func (r *GormRepo) Blacklist(ctx context.Context, tokenID uint) (bool, error) {
	return blacklist(r.DB.WithContext(ctx), tokenID)
}

func blacklist(db *gorm.DB, tokenID uint) (bool, error) {
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}).Create(&models.BlacklistedToken{TokenID: tokenID})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("blacklist token %d: %w", tokenID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) OutstandingForUser(ctx context.Context, userID uint) ([]models.OutstandingToken, error) {
	var out []models.OutstandingToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("outstanding for user: %w", err)
	}
	return out, nil
}

// BlacklistAllForUser revokes every token ever issued to the user, one row at a time.
// It stops on the first error; rows handled before it stay revoked.
func (r *GormRepo) BlacklistAllForUser(ctx context.Context, userID uint) (int, error) {
	tokens, err := r.OutstandingForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, t := range tokens {
		ok, err := r.Blacklist(ctx, t.ID)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// RotateRefresh revokes the old token and records its replacement in one transaction.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldID uint, next *models.OutstandingToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := blacklist(tx, oldID)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyBlacklisted
		}
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("add outstanding token: %w", err)
		}
		return nil
	})
}

var ErrAlreadyBlacklisted = errors.New("token is blacklisted")
