package account

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"librarian/internal/cache"
	"librarian/internal/models"
	"librarian/internal/storage"
)

// UserInfo is the registration input.
type UserInfo struct {
	Username   string
	Email      string
	TelegramID int64
	FirstName  string
	LastName   string
	Mobile     string
	Password   string
}

// Service maps messaging-platform identities to application users.
type Service struct {
	store  storage.Storage
	claims *cache.ClaimCache
	logger *zap.Logger
}

// New creates the account service.
func New(store storage.Storage, claims *cache.ClaimCache, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		claims: claims,
		logger: logger,
	}
}

// Authenticate resolves a telegram id to a user claim, consulting the
// injected cache first. Unknown ids fail with storage.ErrUserNotFound.
func (s *Service) Authenticate(ctx context.Context, telegramID int64) (models.UserClaim, error) {
	if claim, ok := s.claims.Get(telegramID); ok {
		return claim, nil
	}

	user, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return models.UserClaim{}, err
	}

	claim := models.UserClaim{Username: user.Username, TelegramID: user.TelegramID}
	s.claims.Set(telegramID, claim)
	return claim, nil
}

// Register creates a new user. Username and telegram-id uniqueness are
// enforced by the store (ErrDuplicateUsername, ErrDuplicateTelegramID).
func (s *Service) Register(ctx context.Context, info UserInfo) (models.UserClaim, error) {
	if info.Username == "" {
		return models.UserClaim{}, fmt.Errorf("username is required")
	}

	var passwordHash string
	if info.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(info.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.UserClaim{}, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	user, err := s.store.CreateUser(ctx, models.User{
		Username:     info.Username,
		Email:        info.Email,
		TelegramID:   info.TelegramID,
		FirstName:    info.FirstName,
		LastName:     info.LastName,
		Mobile:       info.Mobile,
		PasswordHash: passwordHash,
		IsActive:     true,
	})
	if err != nil {
		return models.UserClaim{}, err
	}

	s.logger.Info("user registered",
		zap.String("username", user.Username),
		zap.Int64("telegram_id", user.TelegramID),
	)

	claim := models.UserClaim{Username: user.Username, TelegramID: user.TelegramID}
	if user.TelegramID != 0 {
		s.claims.Set(user.TelegramID, claim)
	}
	return claim, nil
}
