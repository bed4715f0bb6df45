package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"

	"github.com/hitoshi/bradspelsmeny/internal/model"
)

// ErrInvalidToken はアクセストークンが無効・期限切れ・改ざんされている場合のエラー。
var ErrInvalidToken = errors.New("invalid access token")

// roleClaim はロールを格納するクレーム名。
const roleClaim = "role"

// TokenService は HS256 署名のアクセストークンを発行・検証する。
type TokenService struct {
	jwt *jwtauth.JWTAuth
	ttl time.Duration
	now func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		jwt: jwtauth.New("HS256", []byte(secret), nil),
		ttl: ttl,
		now: time.Now,
	}
}

// TTL はアクセストークンの有効期間を返す。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// IssueAccessToken はユーザーのアクセストークンを発行する。
// sub にユーザーID、role にロールを格納する。
func (s *TokenService) IssueAccessToken(user *model.User) (string, error) {
	now := s.now()
	_, token, err := s.jwt.Encode(map[string]interface{}{
		"sub":     strconv.FormatInt(user.ID, 10),
		roleClaim: string(user.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// Authenticate はアクセストークンを検証し、利用者情報を返す。
func (s *TokenService) Authenticate(bearer string) (model.Identity, error) {
	if bearer == "" {
		return model.Identity{}, ErrInvalidToken
	}

	token, err := jwtauth.VerifyToken(s.jwt, bearer)
	if err != nil || token == nil {
		return model.Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(token.Subject(), 10, 64)
	if err != nil || userID <= 0 {
		return model.Identity{}, ErrInvalidToken
	}

	role := model.RoleUser
	if v, ok := token.Get(roleClaim); ok {
		if r, ok := v.(string); ok && r == string(model.RoleAdmin) {
			role = model.RoleAdmin
		}
	}

	return model.Identity{UserID: userID, Role: role}, nil
}
