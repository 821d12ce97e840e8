package app

import (
	"time"

	"mealduty-service/internal/models"
)

const (
	OtherReason       = "Autre"
	UnspecifiedPerson = "Non spécifié"
)

// Breakdowns accepted by StatsConfig.
const (
	ByReason = "reason"
	ByPerson = "person"
	ByMeal   = "meal"
	ByMonth  = "month"
)

type Counts struct {
	Actives    int `json:"actives"`
	Remboursee int `json:"remboursee"`
	Total      int `json:"total"`
}

func (c Counts) add(reimbursed bool) Counts {
	if reimbursed {
		c.Remboursee++
	} else {
		c.Actives++
	}
	c.Total++
	return c
}

// Stats is the aggregate returned with every listing. Disabled or empty breakdowns
// are omitted.
type Stats struct {
	Total       int               `json:"total"`
	Remboursee  int               `json:"remboursee"`
	Actives     int               `json:"actives"`
	RefundToday int               `json:"refundToday"`
	ReasonStats map[string]Counts `json:"reasonStats,omitempty"`
	PersonStats map[string]Counts `json:"personStats,omitempty"`
	MealStats   map[string]Counts `json:"mealStats,omitempty"`
	MonthStats  map[string]Counts `json:"monthStats,omitempty"`
}

type StatsConfig struct {
	// Location decides where a calendar day starts for refundToday. Nil means UTC.
	Location   *time.Location
	Reasons    []string
	People     []string
	Breakdowns []string
}

func (sc StatsConfig) enabled(name string) bool {
	for _, b := range sc.Breakdowns {
		if b == name {
			return true
		}
	}
	return false
}

func seeded(keys ...string) map[string]Counts {
	m := make(map[string]Counts, len(keys))
	for _, k := range keys {
		m[k] = Counts{}
	}
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (sc StatsConfig) reasonBucket(reason string) string {
	if reason == "" || !contains(sc.Reasons, reason) {
		return OtherReason
	}
	return reason
}

func personBucket(person string) string {
	if person == "" {
		return UnspecifiedPerson
	}
	return person
}

// monthKey returns the YYYY-MM bucket of a booking date, or false when the
// date cannot be read as a calendar date.
func monthKey(date string) (string, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01"), true
		}
	}
	return "", false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ComputeStats partitions bookings into active and reimbursed and builds the
// enabled breakdowns. Actives+Remboursee always equals Total.
func ComputeStats(bookings []models.Booking, now time.Time, sc StatsConfig) Stats {
	loc := sc.Location
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)

	var s Stats
	if sc.enabled(ByReason) {
		s.ReasonStats = seeded(append(append([]string{}, sc.Reasons...), OtherReason)...)
	}
	if sc.enabled(ByPerson) {
		s.PersonStats = seeded(append(append([]string{}, sc.People...), UnspecifiedPerson)...)
	}
	if sc.enabled(ByMeal) {
		s.MealStats = seeded(string(models.Lunch), string(models.Dinner))
	}
	if sc.enabled(ByMonth) {
		s.MonthStats = map[string]Counts{}
	}

	for _, b := range bookings {
		s.Total++
		if b.Remboursee {
			s.Remboursee++
			if !b.UpdatedAt.IsZero() && sameDay(b.UpdatedAt.In(loc), today) {
				s.RefundToday++
			}
		} else {
			s.Actives++
		}

		if s.ReasonStats != nil {
			k := sc.reasonBucket(b.Reason)
			s.ReasonStats[k] = s.ReasonStats[k].add(b.Remboursee)
		}
		if s.PersonStats != nil {
			k := personBucket(b.ReimbursedBy)
			s.PersonStats[k] = s.PersonStats[k].add(b.Remboursee)
		}
		if s.MealStats != nil {
			k := string(b.Meal)
			s.MealStats[k] = s.MealStats[k].add(b.Remboursee)
		}
		if s.MonthStats != nil {
			if k, ok := monthKey(b.Date); ok {
				s.MonthStats[k] = s.MonthStats[k].add(b.Remboursee)
			}
		}
	}
	return s
}
