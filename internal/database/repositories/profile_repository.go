package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/tuxhw/tuxd/internal/database/models"
)

// ProfileRepository handles undervolt profile data access.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create stores a new profile, assigning it an ID.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.UndervoltProfile) error {
	if profile.ID == "" {
		profile.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(profile).Error
}

// FindAll returns all profiles ordered by name.
func (r *ProfileRepository) FindAll(ctx context.Context) ([]models.UndervoltProfile, error) {
	var profiles []models.UndervoltProfile
	result := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&profiles)
	return profiles, result.Error
}

// FindByID returns a profile by ID, or nil when absent.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.UndervoltProfile, error) {
	var profile models.UndervoltProfile
	result := r.db.WithContext(ctx).First(&profile, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &profile, nil
}

// FindByName returns a profile by its unique name, or nil when absent.
func (r *ProfileRepository) FindByName(ctx context.Context, name string) (*models.UndervoltProfile, error) {
	var profile models.UndervoltProfile
	result := r.db.WithContext(ctx).First(&profile, "name = ?", name)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &profile, nil
}

// Update saves changes to an existing profile.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.UndervoltProfile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// Delete removes a profile by ID.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.UndervoltProfile{}, "id = ?", id).Error
}
