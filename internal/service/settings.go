package service

import (
	"context"
	"errors"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

// Setting values are read on every gated request and every payment screen;
// they are cached briefly and dropped on write.
const (
	settingCacheTTL     = time.Minute
	settingCacheCleanup = 5 * time.Minute
)

// SettingService reads and writes named settings.
type SettingService struct {
	repo  *repository.SettingRepository
	cache *gocache.Cache
	log   *zap.Logger
}

// NewSettingService constructs a SettingService.
func NewSettingService(repo *repository.SettingRepository, log *zap.Logger) *SettingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingService{
		repo:  repo,
		cache: gocache.New(settingCacheTTL, settingCacheCleanup),
		log:   log.Named("settings"),
	}
}

// ListSettings returns every setting.
func (s *SettingService) ListSettings(ctx context.Context) ([]model.Setting, error) {
	settings, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list settings", err)
	}
	return settings, nil
}

// SettingValue returns the value of a named setting or repository.ErrNotFound.
func (s *SettingService) SettingValue(ctx context.Context, name string) (string, error) {
	if v, ok := s.cache.Get(name); ok {
		if value, ok := v.(string); ok {
			return value, nil
		}
	}
	st, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", repository.ErrNotFound
		}
		return "", apperr.Dependency("read setting", err)
	}
	s.cache.SetDefault(name, st.Value)
	return st.Value, nil
}

// UpsertSetting creates the setting on first write and patches it afterwards.
func (s *SettingService) UpsertSetting(ctx context.Context, name, value string) (*model.Setting, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.NewValidation("name", "Setting name is required")
	}
	defer s.cache.Delete(name)

	st, err := s.repo.GetByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		st, err = s.repo.Create(ctx, name, value)
		if err != nil {
			return nil, apperr.Dependency("create setting", err)
		}
	case err != nil:
		return nil, apperr.Dependency("read setting", err)
	default:
		if err := s.repo.SetValue(ctx, st.ID, value); err != nil {
			return nil, apperr.Dependency("update setting", err)
		}
		st.Value = value
	}
	s.log.Info("setting written", zap.String("name", name))
	return st, nil
}

// EnsureSetting writes value only when the setting does not exist yet. It
// reports whether it created the setting. An empty value is never written.
func (s *SettingService) EnsureSetting(ctx context.Context, name, value string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, apperr.NewValidation("name", "Setting name is required")
	}
	if value == "" {
		return false, nil
	}
	_, err := s.repo.GetByName(ctx, name)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, apperr.Dependency("read setting", err)
	}
	defer s.cache.Delete(name)
	if _, err := s.repo.Create(ctx, name, value); err != nil {
		return false, apperr.Dependency("create setting", err)
	}
	s.log.Info("setting seeded", zap.String("name", name))
	return true, nil
}
