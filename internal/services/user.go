package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/internal/utils"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type UserListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Username string `form:"username"`
	Role     string `form:"role"`
	RealmID  uint   `form:"realm_id"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	RealmID  uint   `json:"realm_id"`
}

type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Nickname *string `json:"nickname"`
}

func validRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleUser
}

func (s *UserService) List(ctx context.Context, actor Actor, req *UserListRequest) (*UserListResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if req.Username != "" {
		query = query.Where("username LIKE ?", "%"+req.Username+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.RealmID > 0 {
		query = query.Where("id IN (?)", s.db.Model(&models.UserRealm{}).Select("user_id").Where("realm_id = ?", req.RealmID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var users []models.User
	if err := query.Order("id ASC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&users).Error; err != nil {
		return nil, err
	}
	return &UserListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: users}, nil
}

// Create adds a local account, optionally straight into a realm.
func (s *UserService) Create(ctx context.Context, actor Actor, req *CreateUserRequest) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, newValidation("username is required")
	}
	if len(req.Password) < 6 {
		return nil, newValidation("password must be at least 6 characters")
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !validRole(role) {
		return nil, newValidation("invalid role, must be 'admin' or 'user'")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username: username,
		Password: hashed,
		Email:    req.Email,
		Nickname: req.Nickname,
		Role:     role,
		AuthType: AuthTypeLocal,
		IsActive: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return newConflict("username %q is already taken", username)
		}
		if req.RealmID > 0 {
			var realms int64
			if err := tx.Model(&models.Realm{}).Where("id = ?", req.RealmID).Count(&realms).Error; err != nil {
				return err
			}
			if realms == 0 {
				return newNotFound("realm not found")
			}
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if req.RealmID > 0 {
			return tx.Create(&models.UserRealm{UserID: user.ID, RealmID: req.RealmID}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) Update(ctx context.Context, actor Actor, id uint, req *UpdateUserRequest) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, newValidation("cannot modify your own account")
	}

	updates := make(map[string]interface{})
	if req.Role != nil {
		if !validRole(*req.Role) {
			return nil, newValidation("invalid role, must be 'admin' or 'user'")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if len(updates) == 0 {
		return nil, newValidation("no fields to update")
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("user not found")
		}
		return nil, err
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
