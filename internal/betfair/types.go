package betfair

import (
	"fmt"
	"strings"
)

// MarketFilter narrows the markets a betting call considers. Empty fields
// match everything.
type MarketFilter struct {
	TextQuery       string   `json:"textQuery,omitempty"`
	EventTypeIDs    []string `json:"eventTypeIds,omitempty"`
	EventIDs        []string `json:"eventIds,omitempty"`
	CompetitionIDs  []string `json:"competitionIds,omitempty"`
	MarketIDs       []string `json:"marketIds,omitempty"`
	MarketCountries []string `json:"marketCountries,omitempty"`
	InPlayOnly      bool     `json:"inPlayOnly,omitempty"`
}

// EventType is a sport.
type EventType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e EventType) String() string {
	return fmt.Sprintf("EventType((%s, %s))", quote(e.ID), quote(e.Name))
}

// EventTypeResult is one row of listEventTypes.
type EventTypeResult struct {
	EventType   EventType `json:"eventType"`
	MarketCount int       `json:"marketCount"`
}

func (r EventTypeResult) String() string {
	return fmt.Sprintf("EventTypeResult(%s, %d)", r.EventType, r.MarketCount)
}

// Competition is a league, cup or tournament within a sport.
type Competition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c Competition) String() string {
	return fmt.Sprintf("Competition(id = %s, name = %s)", c.ID, c.Name)
}

// CompetitionResult is one row of listCompetitions.
type CompetitionResult struct {
	Competition       Competition `json:"competition"`
	MarketCount       int         `json:"marketCount"`
	CompetitionRegion string      `json:"competitionRegion"`
}

func (r CompetitionResult) String() string {
	return fmt.Sprintf("CompetitionResult(competition = %s, market_count = %d, competition_region = %s)",
		r.Competition, r.MarketCount, r.CompetitionRegion)
}

// quote renders s the way a tuple of strings prints in the exchange's
// reference tooling: single quotes unless s itself contains one.
func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
