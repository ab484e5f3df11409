package archive

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Query filters a search. Zero values mean "match all" for that dimension.
// A nil Tags slice matches all events; a non-nil empty slice matches none,
// since no tag can overlap it.
type Query struct {
	Year     int
	Month    int
	Location string
	Tags     []string
}

// SearchResult groups the records a query returned.
type SearchResult struct {
	Events       []Event       `json:"events"`
	Places       []Place       `json:"locations"`
	Figures      []Figure      `json:"figures"`
	SurvivalTips []SurvivalTip `json:"survival_tips"`
}

// Search returns events matching every filter in q, places whose names
// contain q.Location (all places when it is empty), and all figures and
// survival tips.
func (a *Archive) Search(q Query) SearchResult {
	res := SearchResult{
		Events:       a.filterEvents(q),
		Places:       []Place{},
		Figures:      append([]Figure(nil), a.corpus.Figures...),
		SurvivalTips: append([]SurvivalTip(nil), a.corpus.SurvivalTips...),
	}
	for _, p := range a.corpus.Places {
		if q.Location == "" || p.matches(q.Location) {
			res.Places = append(res.Places, p)
		}
	}

	logrus.WithFields(logrus.Fields{
		"year":     q.Year,
		"month":    q.Month,
		"location": q.Location,
		"tags":     q.Tags,
		"events":   len(res.Events),
		"places":   len(res.Places),
	}).Debug("archive search")
	return res
}

func (a *Archive) filterEvents(q Query) []Event {
	events := []Event{}
	for _, e := range a.corpus.Events {
		if q.Year != 0 && e.Year != q.Year {
			continue
		}
		if q.Month != 0 && e.Month != q.Month {
			continue
		}
		if q.Location != "" && !e.atLocation(q.Location) {
			continue
		}
		if q.Tags != nil && !e.hasAnyTag(q.Tags) {
			continue
		}
		events = append(events, e)
	}
	return events
}

// atLocation matches name as a substring of the local-script location, or
// case-insensitively against the English alias.
func (e Event) atLocation(name string) bool {
	if strings.Contains(e.Location, name) {
		return true
	}
	return e.LocationEn != "" && containsFold(e.LocationEn, name)
}

func (e Event) hasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// matches reports whether name appears in any of the place's three names.
func (p Place) matches(name string) bool {
	if strings.Contains(p.AncientName, name) || strings.Contains(p.ModernName, name) {
		return true
	}
	return p.EnglishName != "" && containsFold(p.EnglishName, name)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// PlaceInfo returns the first place whose names contain name.
func (a *Archive) PlaceInfo(name string) (Place, bool) {
	if name == "" {
		return Place{}, false
	}
	for _, p := range a.corpus.Places {
		if p.matches(name) {
			return p, true
		}
	}
	return Place{}, false
}

// EventsOnDate returns the events of a year, optionally narrowed to a month
// (0 for the whole year), in corpus order. Use Timeline for chronological
// order.
func (a *Archive) EventsOnDate(year, month int) []Event {
	return a.filterEvents(Query{Year: year, Month: month})
}

// Timeline returns the events between startYear and endYear inclusive,
// sorted by (year, month). Events without a month sort first in their year.
func (a *Archive) Timeline(startYear, endYear int) []Event {
	var events []Event
	for _, e := range a.corpus.Events {
		if e.Year != 0 && e.Year >= startYear && e.Year <= endYear {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Year != events[j].Year {
			return events[i].Year < events[j].Year
		}
		return events[i].Month < events[j].Month
	})
	return events
}
