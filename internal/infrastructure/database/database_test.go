package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20200412_100000_initial_schema.up.sql", "20200412_100000", true, true},
		{"20200412_100000_initial_schema.down.sql", "20200412_100000", false, true},
		{"notes.txt", "", false, false},
		{"bare.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || isUp != tt.wantUp {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantUp)
			}
		})
	}
}
