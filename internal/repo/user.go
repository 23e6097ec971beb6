package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/car_rental/internal/models"
)

// CreateUser keeps username and email unique.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	db := r.DB.WithContext(ctx)

	var n int64
	if err := db.Model(&models.User{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
		return fmt.Errorf("count username: %w", err)
	}
	if n > 0 {
		return ErrUsernameTaken
	}
	if u.Email != "" {
		if err := db.Model(&models.User{}).Where("LOWER(email) = LOWER(?)", u.Email).Count(&n).Error; err != nil {
			return fmt.Errorf("count email: %w", err)
		}
		if n > 0 {
			return ErrEmailTaken
		}
	}

	if err := db.Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ListUsers returns users matching scope ordered by id. limit <= 0 means no limit.
func (r *GormRepo) ListUsers(ctx context.Context, scope func(*gorm.DB) *gorm.DB, offset, limit int) ([]models.User, int64, error) {
	base := func() *gorm.DB {
		return r.DB.WithContext(ctx).Model(&models.User{}).Scopes(scope)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	q := base().Order("users.id")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// GetVisibleUser returns gorm.ErrRecordNotFound when id is outside scope.
func (r *GormRepo) GetVisibleUser(ctx context.Context, scope func(*gorm.DB) *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Scopes(scope).Where("users.id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).Order("id").First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile writes username and email, keeping both unique among other users.
func (r *GormRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	db := r.DB.WithContext(ctx)

	var n int64
	if err := db.Model(&models.User{}).Where("username = ? AND id <> ?", u.Username, u.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("count username: %w", err)
	}
	if n > 0 {
		return ErrUsernameTaken
	}
	if u.Email != "" {
		if err := db.Model(&models.User{}).Where("LOWER(email) = LOWER(?) AND id <> ?", u.Email, u.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("count email: %w", err)
		}
		if n > 0 {
			return ErrEmailTaken
		}
	}

	err := db.Model(&models.User{ID: u.ID}).Updates(map[string]any{
		"username": u.Username,
		"email":    u.Email,
	}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// SetActive never deletes rows; destroy goes through here with active=false.
func (r *GormRepo) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) SetPassword(ctx context.Context, id uint, passwordHash string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error; err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (r *GormRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
