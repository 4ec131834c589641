package member

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/pkg/crypto"
)

// Service manages tenant members.
type Service struct {
	members *multitenant.Repository[domain.AppMember]
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a member service.
func New(members *multitenant.Repository[domain.AppMember], logger *slog.Logger) Service {
	return Service{members: members, logger: logger, now: time.Now}
}

// Create stores a member, hashing a plaintext password.
func (s Service) Create(ctx context.Context, m domain.AppMember) (domain.AppMember, error) {
	hashed, err := hashPassword(m.Password)
	if err != nil {
		return domain.AppMember{}, err
	}
	m.Password = hashed
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	created, err := s.members.Create(ctx, m)
	if err != nil {
		return domain.AppMember{}, err
	}
	s.logger.Info("member created", "user_name", created.UserName)
	return created, nil
}

// Find returns matching members.
func (s Service) Find(ctx context.Context, filter store.Filter) ([]domain.AppMember, error) {
	return s.members.Find(ctx, filter)
}

// FindByID returns one member.
func (s Service) FindByID(ctx context.Context, userName string, filter store.Filter) (domain.AppMember, error) {
	return s.members.FindByID(ctx, userName, filter)
}

// FindPublic returns matching members without credentials or device data.
func (s Service) FindPublic(ctx context.Context, filter store.Filter) ([]domain.AppMember, error) {
	filter.Include = nil
	members, err := s.members.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i] = members[i].Public()
	}
	return members, nil
}

// FindPublicByID returns one member without credentials or device data.
func (s Service) FindPublicByID(ctx context.Context, userName string, filter store.Filter) (domain.AppMember, error) {
	filter.Include = nil
	m, err := s.members.FindByID(ctx, userName, filter)
	if err != nil {
		return domain.AppMember{}, err
	}
	return m.Public(), nil
}

// Count returns the number of matching members.
func (s Service) Count(ctx context.Context, where store.Where) (int64, error) {
	return s.members.Count(ctx, where)
}

// UpdateAll patches every matching member.
func (s Service) UpdateAll(ctx context.Context, patch store.Document, where store.Where) (int64, error) {
	patch, err := s.preparePatch(patch)
	if err != nil {
		return 0, err
	}
	return s.members.UpdateAll(ctx, patch, where)
}

// UpdateByID patches one member.
func (s Service) UpdateByID(ctx context.Context, userName string, patch store.Document) error {
	patch, err := s.preparePatch(patch)
	if err != nil {
		return err
	}
	return s.members.UpdateByID(ctx, userName, patch)
}

// ReplaceByID overwrites one member.
func (s Service) ReplaceByID(ctx context.Context, userName string, m domain.AppMember) error {
	hashed, err := hashPassword(m.Password)
	if err != nil {
		return err
	}
	m.Password = hashed
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = s.now().UTC()
	}
	return s.members.ReplaceByID(ctx, userName, m)
}

// DeleteByID removes one member.
func (s Service) DeleteByID(ctx context.Context, userName string) error {
	return s.members.DeleteByID(ctx, userName)
}

func (s Service) preparePatch(patch store.Document) (store.Document, error) {
	if len(patch) == 0 {
		return patch, nil
	}
	out := patch.Clone()
	if plain, ok := out["password"].(string); ok {
		hashed, err := hashPassword(plain)
		if err != nil {
			return nil, err
		}
		out["password"] = hashed
	}
	if _, ok := out["updatedAt"]; !ok {
		out["updatedAt"] = s.now().UTC()
	}
	return out, nil
}

// hashPassword leaves empty values and existing bcrypt hashes untouched.
func hashPassword(plain string) (string, error) {
	if plain == "" || crypto.IsHash(plain) {
		return plain, nil
	}
	hash, err := crypto.HashPassword(plain)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
