// internal/repository/profile_repository.go
package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/model"
)

const profileExt = ".json"

// profileRepository keeps one JSON file per profile
type profileRepository struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileRepository creates a profile repository rooted at dir
func NewProfileRepository(dir string, logger *zap.Logger) ProfileRepository {
	return &profileRepository{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

func (r *profileRepository) path(name string) string {
	return filepath.Join(r.dir, safeFileName(name)+profileExt)
}

// Save writes the profile. Saving over an existing profile keeps its creation
// time and bumps the version.
func (r *profileRepository) Save(ctx context.Context, profile *model.Profile) error {
	if profile == nil {
		return apperrors.New(apperrors.KindInvalidArgument, "profile is required")
	}
	if err := requireName(profile.Name); err != nil {
		return err
	}
	if profile.Config == nil {
		return apperrors.New(apperrors.KindInvalidArgument, "profile config is required")
	}

	now := r.now().UTC()
	path := r.path(profile.Name)

	var existing model.Profile
	switch err := readJSON(path, &existing); {
	case err == nil:
		profile.Version = max(existing.Version+1, 2)
		if !existing.CreatedAt.IsZero() {
			profile.CreatedAt = existing.CreatedAt
		}
	case errors.Is(err, ErrNotFound):
		if profile.Version < 1 {
			profile.Version = 1
		}
	default:
		r.logger.Warn("Existing profile is unreadable, overwriting",
			zap.String("profile", profile.Name),
			zap.Error(err),
		)
		profile.Version = 1
	}

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if err := writeJSON(path, profile); err != nil {
		r.logger.Error("Failed to save profile", zap.String("profile", profile.Name), zap.Error(err))
		return err
	}

	r.logger.Info("Profile saved",
		zap.String("profile", profile.Name),
		zap.Int("version", profile.Version),
	)
	return nil
}

// GetByName loads a profile
func (r *profileRepository) GetByName(ctx context.Context, name string) (*model.Profile, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}

	var profile model.Profile
	if err := readJSON(r.path(name), &profile); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "profile %q", name)
		}
		return nil, err
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}

// List returns every readable profile sorted by name. Unreadable files are skipped.
func (r *profileRepository) List(ctx context.Context) ([]*model.Profile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*model.Profile{}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.KindStorage, "list profiles")
	}

	profiles := make([]*model.Profile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), profileExt) {
			continue
		}

		var profile model.Profile
		if err := readJSON(filepath.Join(r.dir, entry.Name()), &profile); err != nil {
			r.logger.Warn("Skipping unreadable profile", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if profile.Config == nil {
			r.logger.Warn("Skipping profile without config", zap.String("file", entry.Name()))
			continue
		}
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		profiles = append(profiles, &profile)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].Name) < strings.ToLower(profiles[j].Name)
	})
	return profiles, nil
}

// Delete removes a profile
func (r *profileRepository) Delete(ctx context.Context, name string) error {
	if err := requireName(name); err != nil {
		return err
	}

	if err := os.Remove(r.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.Newf(apperrors.KindNotFound, "profile %q", name)
		}
		return apperrors.Wrapf(err, apperrors.KindStorage, "delete profile %q", name)
	}

	r.logger.Info("Profile deleted", zap.String("profile", name))
	return nil
}
