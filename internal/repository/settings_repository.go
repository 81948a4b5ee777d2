package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// Singleton keys inside the settings and assets collections.
const (
	SettingsKeySchool     = "school"
	SettingsKeyActivation = "activation"
	AssetsKeySchool       = "school_assets"
)

// SettingsRepository reads and writes the keyed singletons. Values are small
// and read rarely, so it goes to the store on every call.
type SettingsRepository struct {
	store kvstore.Store
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(store kvstore.Store) *SettingsRepository {
	return &SettingsRepository{store: store}
}

// Settings returns the stored settings, or the zero value before setup.
func (r *SettingsRepository) Settings(ctx context.Context) (models.SchoolSettings, error) {
	var settings models.SchoolSettings
	if _, err := kvstore.GetJSON(ctx, r.store, kvstore.CollectionSettings, SettingsKeySchool, &settings); err != nil {
		return models.SchoolSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// SaveSettings overwrites the settings singleton.
func (r *SettingsRepository) SaveSettings(ctx context.Context, settings models.SchoolSettings) error {
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionSettings, SettingsKeySchool, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Assets returns the stored images, or empty assets.
func (r *SettingsRepository) Assets(ctx context.Context) (models.SchoolAssets, error) {
	var assets models.SchoolAssets
	if _, err := kvstore.GetJSON(ctx, r.store, kvstore.CollectionAssets, AssetsKeySchool, &assets); err != nil {
		return models.SchoolAssets{}, fmt.Errorf("get assets: %w", err)
	}
	return assets, nil
}

// SaveAssets overwrites the assets singleton.
func (r *SettingsRepository) SaveAssets(ctx context.Context, assets models.SchoolAssets) error {
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionAssets, AssetsKeySchool, assets); err != nil {
		return fmt.Errorf("save assets: %w", err)
	}
	return nil
}

// ClearAssets removes the assets singleton.
func (r *SettingsRepository) ClearAssets(ctx context.Context) error {
	if err := r.store.Delete(ctx, kvstore.CollectionAssets, AssetsKeySchool); err != nil {
		return fmt.Errorf("clear assets: %w", err)
	}
	return nil
}

// Activation returns the stored activation when present.
func (r *SettingsRepository) Activation(ctx context.Context) (models.Activation, bool, error) {
	var activation models.Activation
	ok, err := kvstore.GetJSON(ctx, r.store, kvstore.CollectionSettings, SettingsKeyActivation, &activation)
	if err != nil {
		return models.Activation{}, false, fmt.Errorf("get activation: %w", err)
	}
	return activation, ok, nil
}

// SaveActivation stores a validated activation.
func (r *SettingsRepository) SaveActivation(ctx context.Context, activation models.Activation) error {
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionSettings, SettingsKeyActivation, activation); err != nil {
		return fmt.Errorf("save activation: %w", err)
	}
	return nil
}
