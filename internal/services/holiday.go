package services

import (
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/us"
)

// HolidayService decides whether the digest should go out on a given day.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar)}
	for code, holidays := range map[string][]*cal.Holiday{
		"US": us.Holidays,
		"GB": gb.Holidays,
		"IE": ie.Holidays,
		"DE": de.Holidays,
		"FR": fr.Holidays,
		"NL": nl.Holidays,
		"JP": jp.Holidays,
		"CA": ca.Holidays,
		"AU": au.HolidaysNSW,
		"NZ": nz.Holidays,
	} {
		c := cal.NewBusinessCalendar()
		c.Name = code
		c.AddHoliday(holidays...)
		s.calendars[code] = c
	}
	return s
}

// IsWorkday uses the statutory calendar for countryCode. "CN" follows the
// official adjusted-workday schedule; unknown codes and "NONE" mean Monday to Friday.
func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if code == "CN" {
		return isWorkdayChina(t)
	}
	if c, ok := s.calendars[code]; ok {
		return c.IsWorkday(t)
	}
	return !cal.IsWeekend(t)
}

func (s *HolidayService) Supports(countryCode string) bool {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	_, ok := s.calendars[code]
	return ok || code == "CN" || code == "NONE"
}

// isWorkdayChina honours make-up working days that fall on weekends.
func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	if h := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); h != nil {
		return h.IsWork()
	}
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}
