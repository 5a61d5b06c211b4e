package storage

import "testing"

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name        string
		fields      map[string]string
		wantSeconds int64
		wantDate    string
		wantErr     bool
	}{
		{
			name:        "both fields",
			fields:      map[string]string{"playtime_seconds": "40", "playtime_date": "2024-01-15"},
			wantSeconds: 40,
			wantDate:    "2024-01-15",
		},
		{
			name:        "absent fields",
			fields:      map[string]string{},
			wantSeconds: 0,
			wantDate:    "",
		},
		{
			name:        "negative clamps to zero",
			fields:      map[string]string{"playtime_seconds": "-3", "playtime_date": "2024-01-15"},
			wantSeconds: 0,
			wantDate:    "2024-01-15",
		},
		{
			name:    "malformed seconds",
			fields:  map[string]string{"playtime_seconds": "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseRecord(tt.fields)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecord failed: %v", err)
			}
			if record.Seconds != tt.wantSeconds {
				t.Errorf("Expected Seconds %d, got %d", tt.wantSeconds, record.Seconds)
			}
			if record.Date != tt.wantDate {
				t.Errorf("Expected Date %q, got %q", tt.wantDate, record.Date)
			}
		})
	}
}

func TestPlaytimeRecordFields(t *testing.T) {
	fields := PlaytimeRecord{Seconds: 90, Date: "2024-01-15"}.Fields()

	if fields[FieldPlaytimeSeconds] != "90" {
		t.Errorf("Expected playtime_seconds=90, got %s", fields[FieldPlaytimeSeconds])
	}
	if fields[FieldPlaytimeDate] != "2024-01-15" {
		t.Errorf("Expected playtime_date=2024-01-15, got %s", fields[FieldPlaytimeDate])
	}
}

func TestLedgerKeyValid(t *testing.T) {
	if (LedgerKey{Credential: "ticket"}).Valid() {
		t.Error("Expected key without application id to be invalid")
	}
	if (LedgerKey{ApplicationID: "ABCD"}).Valid() {
		t.Error("Expected key without credential to be invalid")
	}
	if !(LedgerKey{Credential: "ticket", ApplicationID: "ABCD"}).Valid() {
		t.Error("Expected complete key to be valid")
	}
}
