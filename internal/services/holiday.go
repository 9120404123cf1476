package services

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/dailydues/backend/internal/models"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
	"gorm.io/gorm"
)

// NationalCalendar answers "is this a public holiday in country X".
type NationalCalendar struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewNationalCalendar() *NationalCalendar {
	n := &NationalCalendar{calendars: make(map[string]*cal.BusinessCalendar)}
	n.add("US", "United States", us.Holidays...)
	n.add("GB", "United Kingdom", gb.Holidays...)
	n.add("DE", "Germany", de.Holidays...)
	n.add("FR", "France", fr.Holidays...)
	n.add("JP", "Japan", jp.Holidays...)
	n.add("AU", "Australia", au.HolidaysNSW...)
	n.add("CA", "Canada", ca.Holidays...)
	n.add("NZ", "New Zealand", nz.Holidays...)
	n.add("IT", "Italy", it.Holidays...)
	n.add("ES", "Spain", es.Holidays...)
	n.add("NL", "Netherlands", nl.Holidays...)
	n.add("BE", "Belgium", be.Holidays...)
	n.add("AT", "Austria", at.Holidays...)
	n.add("CH", "Switzerland", ch.Holidays...)
	n.add("SE", "Sweden", se.Holidays...)
	n.add("NO", "Norway", no.Holidays...)
	n.add("DK", "Denmark", dk.Holidays...)
	n.add("FI", "Finland", fi.Holidays...)
	n.add("PL", "Poland", pl.Holidays...)
	n.add("PT", "Portugal", pt.Holidays...)
	n.add("IE", "Ireland", ie.Holidays...)
	n.add("BR", "Brazil", br.Holidays...)
	return n
}

func (n *NationalCalendar) add(code, name string, holidays ...*cal.Holiday) {
	c := cal.NewBusinessCalendar()
	c.Name = name
	c.AddHoliday(holidays...)
	n.calendars[code] = c
}

// PublicHoliday returns the holiday name when t is a day off in country.
// Observed days count. Unknown countries have no public holidays.
func (n *NationalCalendar) PublicHoliday(t time.Time, country string) (string, bool) {
	country = strings.ToUpper(country)
	if country == "CN" {
		h := HolidayUtil.GetHolidayByYmd(t.Year(), int(t.Month()), t.Day())
		if h != nil && !h.IsWork() {
			return h.GetName(), true
		}
		return "", false
	}

	c, ok := n.calendars[country]
	if !ok {
		return "", false
	}
	actual, observed, h := c.IsHoliday(t)
	if (actual || observed) && h != nil {
		return h.Name, true
	}
	return "", false
}

// LunarDate renders the Chinese lunar date, shown next to CN holidays.
func (n *NationalCalendar) LunarDate(t time.Time) string {
	return calendar.NewSolarFromDate(t).GetLunar().String()
}

func (n *NationalCalendar) Supports(country string) bool {
	country = strings.ToUpper(country)
	if country == "CN" {
		return true
	}
	_, ok := n.calendars[country]
	return ok
}

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (n *NationalCalendar) SupportedCountries() []CountryInfo {
	countries := []CountryInfo{{Code: "CN", Name: "China"}}
	for code, c := range n.calendars {
		countries = append(countries, CountryInfo{Code: code, Name: c.Name})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return countries
}

// HolidayService manages realm and per-user days off.
type HolidayService struct {
	db       *gorm.DB
	clock    Clock
	national *NationalCalendar
}

func NewHolidayService(db *gorm.DB, clock Clock, national *NationalCalendar) *HolidayService {
	return &HolidayService{db: db, clock: clock, national: national}
}

type CreateHolidayRequest struct {
	RealmID     uint   `json:"realm_id" binding:"required"`
	UserID      *uint  `json:"user_id"`
	Date        string `json:"date" binding:"required"`
	Description string `json:"description"`
}

func (s *HolidayService) Create(actor Actor, req *CreateHolidayRequest) (*models.Holiday, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.clock.ParseDate(req.Date); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, newValidation("description is required")
	}

	var realm models.Realm
	if err := s.db.First(&realm, req.RealmID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newNotFound("realm not found")
		}
		return nil, err
	}

	dup := s.db.Model(&models.Holiday{}).Where("realm_id = ? AND date = ?", req.RealmID, req.Date)
	if req.UserID != nil {
		var members int64
		if err := s.db.Model(&models.UserRealm{}).
			Where("realm_id = ? AND user_id = ?", req.RealmID, *req.UserID).
			Count(&members).Error; err != nil {
			return nil, err
		}
		if members == 0 {
			return nil, newValidation("user is not a member of this realm")
		}
		dup = dup.Where("user_id = ?", *req.UserID)
	} else {
		dup = dup.Where("user_id IS NULL")
	}

	var count int64
	if err := dup.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, newConflict("a holiday already exists for this date")
	}

	holiday := models.Holiday{
		RealmID:     req.RealmID,
		UserID:      req.UserID,
		Date:        req.Date,
		Description: desc,
		CreatedBy:   actor.UserID,
	}
	if err := s.db.Create(&holiday).Error; err != nil {
		return nil, err
	}
	return &holiday, nil
}

func (s *HolidayService) Delete(actor Actor, id uint) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	res := s.db.Delete(&models.Holiday{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newNotFound("holiday not found")
	}
	return nil
}

// List returns stored holidays of a realm between from and to inclusive (either may be empty).
func (s *HolidayService) List(actor Actor, realmID uint, from, to string) ([]models.Holiday, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	query := s.db.Preload("User").Where("realm_id = ?", realmID)
	if from != "" {
		query = query.Where("date >= ?", from)
	}
	if to != "" {
		query = query.Where("date <= ?", to)
	}
	var holidays []models.Holiday
	if err := query.Order("date ASC").Find(&holidays).Error; err != nil {
		return nil, err
	}
	return holidays, nil
}

// NationalHoliday is a public day off of a country. CN days carry their lunar date.
type NationalHoliday struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	LunarDate string `json:"lunar_date,omitempty"`
}

const maxNationalRangeDays = 366

// PublicHolidays lists the national holidays of country between from and to inclusive.
func (s *HolidayService) PublicHolidays(actor Actor, country, from, to string) ([]NationalHoliday, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if s.national == nil || !s.national.Supports(country) {
		return nil, newValidation("unsupported holiday country %q", country)
	}
	start, err := s.clock.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := s.clock.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, newValidation("from must not be after to")
	}
	if end.Sub(start) > maxNationalRangeDays*24*time.Hour {
		return nil, newValidation("range cannot exceed %d days", maxNationalRangeDays)
	}

	out := []NationalHoliday{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		name, ok := s.national.PublicHoliday(d, country)
		if !ok {
			continue
		}
		h := NationalHoliday{Date: FormatDateKey(d), Name: name}
		if country == "CN" {
			h.LunarDate = s.national.LunarDate(d)
		}
		out = append(out, h)
	}
	return out, nil
}

// IsHoliday reports whether date is a day off for userID in realmID: a realm-wide
// row, a row for the user, or a national holiday of the realm's country.
func (s *HolidayService) IsHoliday(realmID, userID uint, date string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Holiday{}).
		Where("realm_id = ? AND date = ? AND (user_id IS NULL OR user_id = ?)", realmID, date, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	if s.national == nil {
		return false, nil
	}
	var realm models.Realm
	if err := s.db.Select("id", "holiday_country").First(&realm, realmID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if realm.HolidayCountry == "" {
		return false, nil
	}
	t, err := s.clock.ParseDate(date)
	if err != nil {
		return false, err
	}
	_, ok := s.national.PublicHoliday(t, realm.HolidayCountry)
	return ok, nil
}
