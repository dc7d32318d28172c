package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-banklink/core"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UserProfileStore struct {
	db   *bun.DB
	repo repository.Repository[*userProfileRecord]
	now  func() time.Time
}

func NewUserProfileStore(db *bun.DB) (*UserProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userProfileRecord](db, userProfileHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user profile repository wiring: %w", err)
		}
	}
	return &UserProfileStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *UserProfileStore) Save(ctx context.Context, profile core.UserProfile) (core.UserProfile, error) {
	if s == nil || s.repo == nil {
		return core.UserProfile{}, fmt.Errorf("sqlstore: user profile store is not configured")
	}
	row := newUserProfileRecord(profile, s.now())
	if row.UserID == "" {
		return core.UserProfile{}, fmt.Errorf("sqlstore: user id is required")
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, row)
	if err != nil {
		if isUniqueViolation(err) {
			conflict := goerrors.New("profile already exists for user", goerrors.CategoryConflict).
				WithTextCode(core.ServiceErrorConflict).
				WithMetadata(map[string]any{"user_id": row.UserID})
			conflict.Source = err
			return core.UserProfile{}, conflict
		}
		return core.UserProfile{}, err
	}
	return created.toDomain(), nil
}

func (s *UserProfileStore) GetByUserID(ctx context.Context, userID string) (core.UserProfile, bool, error) {
	if s == nil || s.repo == nil {
		return core.UserProfile{}, false, fmt.Errorf("sqlstore: user profile store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.UserProfile{}, false, nil
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.UserProfile{}, false, err
	}
	if len(rows) == 0 {
		return core.UserProfile{}, false, nil
	}
	return rows[0].toDomain(), true, nil
}
