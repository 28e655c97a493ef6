package alarm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Schedule is the timer condition of a rule. Type "moment" fires at
// the exact Start minute; "range" is satisfied anywhere between Start
// and End inclusive. Repeat lists the weekdays the schedule applies
// to, numbered Monday=2 through Sunday=8; empty means every day.
type Schedule struct {
	Type   string `json:"type"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Repeat []int  `json:"repeat"`
}

// ParseSchedule decodes a timer condition document. An empty document
// yields nil: the rule has no time constraint.
func ParseSchedule(timer string) (*Schedule, error) {
	if timer == "" || timer == "null" || timer == "{}" {
		return nil, nil
	}
	var s Schedule
	if err := json.Unmarshal([]byte(timer), &s); err != nil {
		return nil, fmt.Errorf("decoding timer condition: %w", err)
	}
	if s.Type == "" && s.Start == "" {
		return nil, nil
	}
	return &s, nil
}

// Matches reports whether the schedule is satisfied at t, compared at
// minute resolution in t's location.
func (s *Schedule) Matches(t time.Time) bool {
	if len(s.Repeat) > 0 && !containsWeekday(s.Repeat, t) {
		return false
	}
	now := t.Format("15:04")
	if s.Type == "moment" {
		return now == s.Start
	}
	if s.End == "" {
		return now >= s.Start
	}
	return now >= s.Start && now <= s.End
}

// containsWeekday checks t's weekday against the repeat list, which
// numbers Monday=2 .. Sunday=8.
func containsWeekday(repeat []int, t time.Time) bool {
	day := weekdayNumber(t.Weekday())
	for _, d := range repeat {
		if d == day {
			return true
		}
	}
	return false
}

func weekdayNumber(d time.Weekday) int {
	if d == time.Sunday {
		return 8
	}
	return int(d) + 1
}
