package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/internal/utils"
	"gorm.io/gorm"
)

const (
	AuthTypeLocal = "local"
	AuthTypeLDAP  = "ldap"
)

var (
	errInvalidCredentials = &DomainError{Kind: KindNotAuthenticated, Message: "invalid username or password"}
	errUserDisabled       = &DomainError{Kind: KindNotAuthorized, Message: "user is disabled"}
)

type AuthService struct {
	db        *gorm.DB
	directory Directory
	jwt       config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg config.JWTConfig, directory Directory) *AuthService {
	if jwtCfg.ExpireHour <= 0 {
		jwtCfg.ExpireHour = 24
	}
	if jwtCfg.RefreshExpireHour <= 0 {
		jwtCfg.RefreshExpireHour = 720
	}
	return &AuthService{db: db, directory: directory, jwt: jwtCfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

// TokenPair is an access JWT plus the opaque refresh token that renews it.
type TokenPair struct {
	AccessToken     string       `json:"token"`
	AccessExpireAt  time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user,omitempty"`
}

// Login authenticates locally, or against the directory when asked for and enabled.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, clientIP, userAgent string) (*TokenPair, error) {
	var (
		user *models.User
		err  error
	)
	switch req.AuthType {
	case "", AuthTypeLocal:
		user, err = s.localAuth(ctx, req.Username, req.Password)
	case AuthTypeLDAP:
		user, err = s.directoryAuth(ctx, req.Username, req.Password)
	default:
		return nil, newValidation("invalid auth type %q", req.AuthType)
	}
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(s.db.WithContext(ctx), user, clientIP, userAgent, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		return nil, err
	}
	user.LastLogin = &now
	pair.User = user
	return pair, nil
}

// issue signs a new access token and stores a fresh refresh token. When
// previous is set it is revoked in the same transaction and linked to the new row.
func (s *AuthService) issue(db *gorm.DB, user *models.User, clientIP, userAgent string, previous *models.RefreshToken) (*TokenPair, error) {
	now := time.Now()
	access, err := utils.GenerateToken(user.ID, user.Username, user.Role, s.jwt.ExpireHour)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	record := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   now.Add(time.Duration(s.jwt.RefreshExpireHour) * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if previous == nil {
			return nil
		}
		// only the first concurrent refresh of a token wins
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", previous.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": record.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newConflict("refresh token revoked")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:     access,
		AccessExpireAt:  now.Add(time.Duration(s.jwt.ExpireHour) * time.Hour),
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token. A token can be used once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP, userAgent string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, newValidation("refresh token required")
	}
	db := s.db.WithContext(ctx)

	var stored models.RefreshToken
	if err := db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &DomainError{Kind: KindNotAuthenticated, Message: "invalid refresh token"}
		}
		return nil, err
	}
	if stored.RevokedAt != nil {
		return nil, &DomainError{Kind: KindNotAuthenticated, Message: "refresh token revoked"}
	}
	if !stored.Usable(time.Now()) {
		return nil, &DomainError{Kind: KindNotAuthenticated, Message: "refresh token expired"}
	}

	user, err := s.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errUserDisabled
	}

	pair, err := s.issue(db, user, clientIP, userAgent, &stored)
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, &DomainError{Kind: KindNotAuthenticated, Message: "refresh token revoked"}
		}
		return nil, err
	}
	return pair, nil
}

func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) localAuth(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? AND auth_type = ?", username, AuthTypeLocal).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, errUserDisabled
	}
	return &user, nil
}

// directoryAuth binds against the directory and mirrors the entry into users.
func (s *AuthService) directoryAuth(ctx context.Context, username, password string) (*models.User, error) {
	if s.directory == nil || !s.directory.Enabled() {
		return nil, newValidation("directory login is not enabled")
	}
	entry, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var user models.User
	err = db.Where("username = ? AND auth_type = ?", entry.Username, AuthTypeLDAP).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username: entry.Username,
			Email:    entry.Email,
			Nickname: entry.Nickname,
			Role:     models.RoleUser,
			AuthType: AuthTypeLDAP,
			IsActive: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create directory user: %w", err)
		}
		return &user, nil
	case err != nil:
		return nil, err
	}

	if !user.IsActive {
		return nil, errUserDisabled
	}
	if err := db.Model(&user).Updates(map[string]interface{}{
		"email":    entry.Email,
		"nickname": entry.Nickname,
	}).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists seeds the bootstrap admin when no admin exists yet.
func (s *AuthService) CreateAdminIfNotExists(username, password string) error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		Username: username,
		Password: hashed,
		Nickname: "Administrator",
		Role:     models.RoleAdmin,
		AuthType: AuthTypeLocal,
		IsActive: true,
	}
	return s.db.Create(&admin).Error
}

func (s *AuthService) IsDirectoryEnabled() bool {
	return s.directory != nil && s.directory.Enabled()
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, req *ChangePasswordRequest) error {
	if err := requireAuth(actor); err != nil {
		return err
	}
	user, err := s.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if user.AuthType != AuthTypeLocal {
		return newValidation("directory users cannot change password here")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return newValidation("incorrect old password")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password", hashed).Error
}
