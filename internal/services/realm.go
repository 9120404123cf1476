package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dailydues/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

type RealmService struct {
	db       *gorm.DB
	national *NationalCalendar
	notifier Notifier
}

func NewRealmService(db *gorm.DB, national *NationalCalendar, notifier Notifier) *RealmService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RealmService{db: db, national: national, notifier: notifier}
}

type CreateRealmRequest struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Description    string `json:"description"`
	HolidayCountry string `json:"holiday_country"`
}

type UpdateRealmRequest struct {
	Name           *string `json:"name"`
	Slug           *string `json:"slug"`
	Description    *string `json:"description"`
	HolidayCountry *string `json:"holiday_country"`
}

func validateSlug(slug string) error {
	if slug == "" {
		return newValidation("slug is required")
	}
	if !slugPattern.MatchString(slug) {
		return newValidation("slug must be lowercase with only letters, numbers, and hyphens")
	}
	return nil
}

func (s *RealmService) validateCountry(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	if s.national != nil && !s.national.Supports(code) {
		return "", newValidation("unsupported holiday country %q", code)
	}
	return code, nil
}

func (s *RealmService) slugTaken(db *gorm.DB, slug string, exceptID uint) error {
	var count int64
	if err := db.Model(&models.Realm{}).Where("slug = ? AND id <> ?", slug, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return newConflict("a realm with this slug already exists")
	}
	return nil
}

func (s *RealmService) Create(ctx context.Context, actor Actor, req *CreateRealmRequest) (*models.Realm, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newValidation("name is required")
	}
	slug := strings.TrimSpace(req.Slug)
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	country, err := s.validateCountry(req.HolidayCountry)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := s.slugTaken(db, slug, 0); err != nil {
		return nil, err
	}
	realm := models.Realm{
		Name:           name,
		Slug:           slug,
		Description:    req.Description,
		HolidayCountry: country,
		CreatedBy:      actor.UserID,
	}
	if err := db.Create(&realm).Error; err != nil {
		return nil, fmt.Errorf("create realm: %w", err)
	}
	return &realm, nil
}

func (s *RealmService) Update(ctx context.Context, actor Actor, id uint, req *UpdateRealmRequest) (*models.Realm, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, newValidation("name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Slug != nil {
		slug := strings.TrimSpace(*req.Slug)
		if err := validateSlug(slug); err != nil {
			return nil, err
		}
		if err := s.slugTaken(db, slug, id); err != nil {
			return nil, err
		}
		updates["slug"] = slug
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.HolidayCountry != nil {
		country, err := s.validateCountry(*req.HolidayCountry)
		if err != nil {
			return nil, err
		}
		updates["holiday_country"] = country
	}

	realm, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := db.Model(realm).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete removes a realm and everything scoped to it: commitments with their
// logs and assignments, challenges, holidays and memberships.
func (s *RealmService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	realm, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commitmentIDs []uint
		if err := tx.Model(&models.Commitment{}).Where("realm_id = ?", id).Pluck("id", &commitmentIDs).Error; err != nil {
			return err
		}
		if err := purgeCommitments(tx, commitmentIDs); err != nil {
			return err
		}
		var challengeIDs []uint
		if err := tx.Model(&models.Challenge{}).Where("realm_id = ?", id).Pluck("id", &challengeIDs).Error; err != nil {
			return err
		}
		if err := purgeChallenges(tx, challengeIDs); err != nil {
			return err
		}
		for _, table := range []interface{}{&models.Commitment{}, &models.Holiday{}, &models.UserRealm{}} {
			if err := tx.Where("realm_id = ?", id).Delete(table).Error; err != nil {
				return fmt.Errorf("delete realm rows: %w", err)
			}
		}
		return tx.Delete(&models.Realm{}, id).Error
	})
	if err != nil {
		return err
	}
	uid := actor.UserID
	LogInfo("Realms", "Delete", fmt.Sprintf("realm %d (%s) deleted", realm.ID, realm.Slug), &uid, "", "", nil)
	return nil
}

func (s *RealmService) Get(ctx context.Context, id uint) (*models.Realm, error) {
	var realm models.Realm
	if err := s.db.WithContext(ctx).First(&realm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("realm not found")
		}
		return nil, err
	}
	return &realm, nil
}

func (s *RealmService) List(ctx context.Context, actor Actor) ([]models.Realm, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	var realms []models.Realm
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&realms).Error; err != nil {
		return nil, err
	}
	return realms, nil
}

// AddMember puts a user into a realm and announces the join. Adding an
// existing member is a no-op.
func (s *RealmService) AddMember(ctx context.Context, actor Actor, realmID, userID uint) (*models.UserRealm, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, realmID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("user not found")
		}
		return nil, err
	}

	member := models.UserRealm{UserID: userID, RealmID: realmID}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if res.Error != nil {
		return nil, fmt.Errorf("add realm member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := db.Where("user_id = ? AND realm_id = ?", userID, realmID).First(&member).Error; err != nil {
			return nil, err
		}
		return &member, nil
	}

	s.notifier.Notify(ctx, UserJoinedNotification(user.DisplayName()))
	member.User = &user
	return &member, nil
}

func (s *RealmService) Members(ctx context.Context, actor Actor, realmID uint) ([]models.UserRealm, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	var members []models.UserRealm
	if err := s.db.WithContext(ctx).Preload("User").
		Where("realm_id = ?", realmID).
		Order("id ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
