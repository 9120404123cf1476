package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dailydues/backend/internal/models"
)

func TestNationalCalendar(t *testing.T) {
	n := NewNationalCalendar()

	name, ok := n.PublicHoliday(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), "us")
	if !ok || name == "" {
		t.Errorf("July 4th should be a US holiday, got %q %v", name, ok)
	}
	if _, ok := n.PublicHoliday(time.Date(2025, 7, 9, 0, 0, 0, 0, time.UTC), "US"); ok {
		t.Error("July 9th is not a US holiday")
	}
	if _, ok := n.PublicHoliday(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), "ZZ"); ok {
		t.Error("unknown countries have no holidays")
	}
	if _, ok := n.PublicHoliday(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), "CN"); !ok {
		t.Error("October 1st should be a CN holiday")
	}

	if !n.Supports("cn") || !n.Supports("GB") || n.Supports("XX") {
		t.Error("unexpected Supports result")
	}
	countries := n.SupportedCountries()
	for i := 1; i < len(countries); i++ {
		if countries[i-1].Code >= countries[i].Code {
			t.Fatalf("countries should be sorted by code: %v", countries)
		}
	}
}

func TestHoliday_CreateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	ann := createUser(t, db, "ann", models.RoleUser)
	outsider := createUser(t, db, "dan", models.RoleUser)
	realm := createRealm(t, db, "crew")
	if err := db.Create(&models.UserRealm{UserID: ann.ID, RealmID: realm.ID}).Error; err != nil {
		t.Fatal(err)
	}
	svc := NewHolidayService(db, FixedClock(testNow), nil)

	req := &CreateHolidayRequest{RealmID: realm.ID, Date: "2025-03-14", Description: "Team offsite"}
	if _, err := svc.Create(actorOf(ann), req); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("expected ErrAdminRequired, got %v", err)
	}
	h, err := svc.Create(actorOf(admin), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(actorOf(admin), req); !errors.Is(err, ErrStateConflict) {
		t.Errorf("duplicate: expected conflict, got %v", err)
	}

	personal := &CreateHolidayRequest{RealmID: realm.ID, UserID: &ann.ID, Date: "2025-03-14", Description: "Vacation"}
	if _, err := svc.Create(actorOf(admin), personal); err != nil {
		t.Errorf("a personal day beside a realm day should be allowed, got %v", err)
	}
	stranger := &CreateHolidayRequest{RealmID: realm.ID, UserID: &outsider.ID, Date: "2025-03-15", Description: "Vacation"}
	if _, err := svc.Create(actorOf(admin), stranger); !errors.Is(err, ErrValidation) {
		t.Errorf("non-member: expected validation, got %v", err)
	}
	for _, bad := range []*CreateHolidayRequest{
		{RealmID: realm.ID, Date: "14/03/2025", Description: "x"},
		{RealmID: realm.ID, Date: "2025-03-20", Description: " "},
	} {
		if _, err := svc.Create(actorOf(admin), bad); !errors.Is(err, ErrValidation) {
			t.Errorf("%+v: expected validation, got %v", bad, err)
		}
	}
	if _, err := svc.Create(actorOf(admin), &CreateHolidayRequest{RealmID: 999, Date: "2025-03-20", Description: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing realm: expected not found, got %v", err)
	}

	list, err := svc.List(actorOf(ann), realm.ID, "2025-03-01", "2025-03-31")
	if err != nil || len(list) != 2 {
		t.Errorf("List() = %d holidays, err %v", len(list), err)
	}

	if err := svc.Delete(actorOf(admin), h.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(actorOf(admin), h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected not found, got %v", err)
	}
}

func TestHoliday_IsHoliday(t *testing.T) {
	db := setupTestDB(t)
	ann := createUser(t, db, "ann", models.RoleUser)
	ben := createUser(t, db, "ben", models.RoleUser)
	realm := createRealm(t, db, "crew")
	if err := db.Model(&realm).Update("holiday_country", "US").Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Holiday{RealmID: realm.ID, UserID: &ann.ID, Date: "2025-03-14", Description: "Vacation"}).Error; err != nil {
		t.Fatal(err)
	}
	svc := NewHolidayService(db, FixedClock(testNow), NewNationalCalendar())

	tests := []struct {
		name   string
		userID uint
		date   string
		want   bool
	}{
		{"personal day", ann.ID, "2025-03-14", true},
		{"someone else's personal day", ben.ID, "2025-03-14", false},
		{"national holiday", ben.ID, "2025-07-04", true},
		{"ordinary day", ben.ID, "2025-03-12", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.IsHoliday(realm.ID, tt.userID, tt.date)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsHoliday() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestHoliday_PublicHolidays(t *testing.T) {
	db := setupTestDB(t)
	ann := createUser(t, db, "ann", models.RoleUser)
	svc := NewHolidayService(db, FixedClock(testNow), NewNationalCalendar())

	us, err := svc.PublicHolidays(actorOf(ann), "us", "2025-07-01", "2025-07-07")
	if err != nil {
		t.Fatalf("PublicHolidays() error = %v", err)
	}
	if len(us) != 1 || us[0].Date != "2025-07-04" || us[0].LunarDate != "" {
		t.Errorf("unexpected US holidays: %+v", us)
	}

	cn, err := svc.PublicHolidays(actorOf(ann), "CN", "2024-10-01", "2024-10-01")
	if err != nil {
		t.Fatalf("PublicHolidays() error = %v", err)
	}
	if len(cn) != 1 || cn[0].Name == "" || cn[0].LunarDate == "" {
		t.Errorf("CN holiday should carry a lunar date: %+v", cn)
	}

	tests := []struct {
		name              string
		country, from, to string
	}{
		{"unknown country", "ZZ", "2025-01-01", "2025-01-31"},
		{"reversed range", "US", "2025-02-01", "2025-01-01"},
		{"range too long", "US", "2025-01-01", "2026-06-01"},
		{"bad date", "US", "2025-13-01", "2025-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.PublicHolidays(actorOf(ann), tt.country, tt.from, tt.to); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := svc.PublicHolidays(Actor{}, "US", "2025-07-01", "2025-07-07"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous: expected ErrNotAuthenticated, got %v", err)
	}
}
