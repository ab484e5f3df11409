package archive

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// UnknownDangerLevel is the moderate rating given to places without records.
const UnknownDangerLevel = 50

// safePeriodCeiling caps danger during a place's safe period.
const safePeriodCeiling = 30

// Danger is a location risk assessment.
type Danger struct {
	Level       int    `json:"level"`
	Reasoning   string `json:"reasoning"`
	ReasoningEn string `json:"reasoning_en"`
	Place       *Place `json:"location_info,omitempty"`
}

// AssessDanger rates a location for the given year. It never fails: an
// unknown place gets UnknownDangerLevel with a generic caution.
func (a *Archive) AssessDanger(location string, year int) Danger {
	p, ok := a.PlaceInfo(location)
	if !ok {
		logrus.WithField("location", location).Debug("no archive data for location")
		return Danger{
			Level:       UnknownDangerLevel,
			Reasoning:   "位置信息不详，谨慎行事。",
			ReasoningEn: "Location information unavailable, proceed with caution.",
		}
	}

	if start, end, ok := p.SafePeriod(); ok && year >= start && year <= end {
		return Danger{
			Level:       min(p.DangerLevel, safePeriodCeiling),
			Reasoning:   fmt.Sprintf("%s在此期间相对安全。", p.AncientName),
			ReasoningEn: fmt.Sprintf("%s is relatively safe during this period.", englishOr(p)),
			Place:       &p,
		}
	}

	return Danger{
		Level:       p.DangerLevel,
		Reasoning:   p.Description,
		ReasoningEn: p.DescriptionEn,
		Place:       &p,
	}
}

func englishOr(p Place) string {
	if p.EnglishName != "" {
		return p.EnglishName
	}
	return p.AncientName
}
