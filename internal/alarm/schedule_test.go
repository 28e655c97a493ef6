package alarm

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	for _, timer := range []string{"", "null", "{}"} {
		s, err := ParseSchedule(timer)
		if err != nil || s != nil {
			t.Errorf("ParseSchedule(%q) = %+v, %v, want nil", timer, s, err)
		}
	}

	s, err := ParseSchedule(`{"type":"moment","start":"07:15","repeat":[2,3,4,5,6]}`)
	if err != nil {
		t.Fatalf("ParseSchedule() error = %v", err)
	}
	if s.Type != "moment" || s.Start != "07:15" || len(s.Repeat) != 5 {
		t.Errorf("schedule = %+v", s)
	}

	if _, err := ParseSchedule(`{broken`); err == nil {
		t.Error("ParseSchedule() should fail on malformed JSON")
	}
}

func TestScheduleMatches(t *testing.T) {
	monday := time.Date(2026, 3, 2, 7, 15, 30, 0, time.UTC) // a Monday
	sunday := time.Date(2026, 3, 8, 7, 15, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule Schedule
		at       time.Time
		want     bool
	}{
		{
			name:     "moment hits its minute",
			schedule: Schedule{Type: "moment", Start: "07:15"},
			at:       monday,
			want:     true,
		},
		{
			name:     "moment misses other minutes",
			schedule: Schedule{Type: "moment", Start: "07:15"},
			at:       monday.Add(time.Minute),
			want:     false,
		},
		{
			name:     "range includes bounds",
			schedule: Schedule{Type: "range", Start: "07:00", End: "07:15"},
			at:       monday,
			want:     true,
		},
		{
			name:     "range excludes outside",
			schedule: Schedule{Type: "range", Start: "08:00", End: "09:00"},
			at:       monday,
			want:     false,
		},
		{
			name:     "weekday repeat includes monday as 2",
			schedule: Schedule{Type: "moment", Start: "07:15", Repeat: []int{2}},
			at:       monday,
			want:     true,
		},
		{
			name:     "weekday repeat excludes sunday",
			schedule: Schedule{Type: "moment", Start: "07:15", Repeat: []int{2, 3, 4, 5, 6}},
			at:       sunday,
			want:     false,
		},
		{
			name:     "sunday numbered 8",
			schedule: Schedule{Type: "moment", Start: "07:15", Repeat: []int{8}},
			at:       sunday,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schedule.Matches(tt.at); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
