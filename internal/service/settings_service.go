package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/activation"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/export"
)

// maxAssetLength bounds one data URL, roughly a 1.5 MB image.
const maxAssetLength = 2 << 20

type settingsStore interface {
	Settings(ctx context.Context) (models.SchoolSettings, error)
	SaveSettings(ctx context.Context, settings models.SchoolSettings) error
	Assets(ctx context.Context) (models.SchoolAssets, error)
	SaveAssets(ctx context.Context, assets models.SchoolAssets) error
	ClearAssets(ctx context.Context) error
	Activation(ctx context.Context) (models.Activation, bool, error)
	SaveActivation(ctx context.Context, a models.Activation) error
}

// SettingsConfig carries the device activation inputs.
type SettingsConfig struct {
	Fingerprint       string
	Salt              string
	RequireActivation bool
}

// SaveSettingsRequest completes the first-run setup.
type SaveSettingsRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	District string `json:"district" validate:"max=128"`
}

// ActivateRequest carries a key typed by the user.
type ActivateRequest struct {
	Key string `json:"key" validate:"required"`
}

// SettingsService manages the school identity, printed assets and the
// device activation.
type SettingsService struct {
	repo      settingsStore
	cfg       SettingsConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSettingsService constructs the settings service.
func NewSettingsService(repo settingsStore, cfg SettingsConfig, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, cfg: cfg, validator: validate, logger: logger, now: time.Now}
}

// GetSettings returns the school settings; IsSetup is false on first run.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.SchoolSettings, error) {
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load settings")
	}
	return &settings, nil
}

// SaveSettings stores the school name and district and marks setup done.
func (s *SettingsService) SaveSettings(ctx context.Context, req SaveSettingsRequest) (*models.SchoolSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	settings := models.SchoolSettings{Name: req.Name, District: req.District, IsSetup: true}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, storeError(err, "failed to save settings")
	}
	return &settings, nil
}

// GetAssets returns the stored images.
func (s *SettingsService) GetAssets(ctx context.Context) (*models.SchoolAssets, error) {
	assets, err := s.repo.Assets(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load assets")
	}
	return &assets, nil
}

// SaveAssets replaces the stored images. Each one must be a PNG or JPEG
// data URL.
func (s *SettingsService) SaveAssets(ctx context.Context, assets models.SchoolAssets) (*models.SchoolAssets, error) {
	fields := map[string]string{
		"logo":               assets.Logo,
		"principalSignature": assets.PrincipalSignature,
		"counselorSignature": assets.CounselorSignature,
		"stamp":              assets.Stamp,
	}
	for name, raw := range fields {
		if len(raw) > maxAssetLength {
			return nil, appErrors.Clone(appErrors.ErrValidation, name+" image is too large")
		}
		if _, err := export.DecodeDataURL(raw); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, name+" is not a PNG or JPEG image")
		}
	}
	if err := s.repo.SaveAssets(ctx, assets); err != nil {
		return nil, storeError(err, "failed to save assets")
	}
	return &assets, nil
}

// ClearAssets removes every stored image.
func (s *SettingsService) ClearAssets(ctx context.Context) error {
	if err := s.repo.ClearAssets(ctx); err != nil {
		return storeError(err, "failed to clear assets")
	}
	return nil
}

// Status reports whether this device holds a valid activation.
func (s *SettingsService) Status(ctx context.Context) (*models.ActivationStatus, error) {
	activated, err := s.Activated(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ActivationStatus{
		Activated:   activated,
		Required:    s.cfg.RequireActivation,
		Fingerprint: s.cfg.Fingerprint,
	}, nil
}

// Activated is true when the stored key still matches this device.
func (s *SettingsService) Activated(ctx context.Context) (bool, error) {
	stored, ok, err := s.repo.Activation(ctx)
	if err != nil {
		return false, storeError(err, "failed to load activation")
	}
	if !ok || stored.Fingerprint != s.cfg.Fingerprint {
		return false, nil
	}
	return activation.Validate(s.cfg.Fingerprint, stored.Key, s.cfg.Salt), nil
}

// Activate checks key against this device and stores it.
func (s *SettingsService) Activate(ctx context.Context, req ActivateRequest) (*models.ActivationStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	key := activation.NormalizeKey(req.Key)
	if !activation.Validate(s.cfg.Fingerprint, key, s.cfg.Salt) {
		s.logger.Warn("activation rejected", zap.String("fingerprint", s.cfg.Fingerprint))
		return nil, appErrors.Clone(appErrors.ErrInvalidActivation, "")
	}
	record := models.Activation{Key: key, Fingerprint: s.cfg.Fingerprint, ActivatedAt: s.now().UTC()}
	if err := s.repo.SaveActivation(ctx, record); err != nil {
		return nil, storeError(err, "failed to save activation")
	}
	s.logger.Info("device activated", zap.String("fingerprint", s.cfg.Fingerprint))
	return &models.ActivationStatus{Activated: true, Required: s.cfg.RequireActivation, Fingerprint: s.cfg.Fingerprint}, nil
}

// header returns the school name and the decoded images used on printed
// documents. Undecodable images are skipped.
func (s *SettingsService) header(ctx context.Context) (string, printAssets, error) {
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return "", printAssets{}, fmt.Errorf("load settings: %w", err)
	}
	assets, err := s.repo.Assets(ctx)
	if err != nil {
		return "", printAssets{}, fmt.Errorf("load assets: %w", err)
	}
	decode := func(name, raw string) *export.Image {
		img, err := export.DecodeDataURL(raw)
		if err != nil {
			s.logger.Warn("skipping unreadable asset", zap.String("asset", name), zap.Error(err))
			return nil
		}
		return img
	}
	return settings.Name, printAssets{
		Logo:      decode("logo", assets.Logo),
		Stamp:     decode("stamp", assets.Stamp),
		Principal: decode("principalSignature", assets.PrincipalSignature),
		Counselor: decode("counselorSignature", assets.CounselorSignature),
	}, nil
}

type printAssets struct {
	Logo      *export.Image
	Stamp     *export.Image
	Principal *export.Image
	Counselor *export.Image
}
