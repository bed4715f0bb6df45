// Package auth は会員登録・ログイン・トークン発行を提供する。
//
// アクセストークンは短命の JWT、リフレッシュトークンは refresh_tokens テーブルに
// 有効期限付きで永続化され、使用のたびにローテーションされる。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bradspelsmeny/internal/input"
	"github.com/hitoshi/bradspelsmeny/internal/model"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
)

// RegisterInput は会員登録の入力。
type RegisterInput struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Password  string
}

// Tokens はログイン・トークン更新の結果。
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users      repository.UserRepository
	refresh    repository.RefreshTokenRepository
	tokens     *TokenService
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	refresh repository.RefreshTokenRepository,
	tokens *TokenService,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		users:      users,
		refresh:    refresh,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register は会員を登録し、トークンを発行する。
// 同じ電話番号のゲストユーザーが存在する場合は、そのユーザーを会員に昇格させる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Tokens, error) {
	in.FirstName = input.Text(in.FirstName)
	in.LastName = input.Text(in.LastName)
	in.Phone = input.NormalizePhone(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var missing []string
	if in.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if in.LastName == "" {
		missing = append(missing, "lastName")
	}
	if in.Phone == "" {
		missing = append(missing, "phone")
	}
	if _, err := mail.ParseAddress(in.Email); in.Email == "" || err != nil {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, model.NewMissingAccountInfoError(missing)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewAccountExistsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user, err := s.users.FindByPhone(ctx, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}

	switch {
	case user != nil && !user.IsGuest():
		return nil, model.NewAccountExistsError()
	case user != nil:
		user.FirstName = in.FirstName
		user.LastName = in.LastName
		user.Email = in.Email
		user.PasswordHash = string(hash)
		user.UpdatedAt = now
		if err := s.users.Promote(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to promote guest user: %w", err)
		}
		slog.Info("guest user promoted", slog.Int64("user_id", user.ID))
	default:
		user = &model.User{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Phone:        in.Phone,
			Email:        in.Email,
			PasswordHash: string(hash),
			Role:         model.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new user registered", slog.Int64("user_id", user.ID))
	}

	return s.issue(ctx, user)
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.IsGuest() {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return s.issue(ctx, user)
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 使用したリフレッシュトークンは検証と同時に削除されるため、同じトークンで発行できるのは1回だけ。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, model.NewInvalidRefreshTokenError()
	}

	stored, err := s.refresh.Consume(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if stored == nil {
		return nil, model.NewInvalidRefreshTokenError()
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidRefreshTokenError()
	}

	return s.issue(ctx, user)
}

// Logout はリフレッシュトークンを破棄する。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return model.NewInvalidRefreshTokenError()
	}
	if err := s.refresh.DeleteByID(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// LogoutAll はユーザーの全リフレッシュトークンを破棄する。
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	if err := s.refresh.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	slog.Info("all refresh tokens revoked", slog.Int64("user_id", userID))
	return nil
}

// Me は認証済みユーザーの情報を返す。
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// issue はアクセストークンとリフレッシュトークンを発行する。
func (s *Service) issue(ctx context.Context, user *model.User) (*Tokens, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rt := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.refresh.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: rt.ID,
		ExpiresIn:    s.tokens.TTL(),
		User:         user,
	}, nil
}

// ValidatePassword はパスワードが8文字以上で英字と数字を含むことを検証する。
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return model.NewInvalidPasswordError()
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return model.NewInvalidPasswordError()
	}
	return nil
}
