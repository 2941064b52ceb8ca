package sqlite

import (
	"testing"
	"time"

	"csvingest/internal/value"
)

func TestParseSQLiteTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", want: time.Date(2026, 1, 27, 12, 17, 8, 123456789, time.UTC)},
		{name: "rfc3339_offset", in: "2026-01-27T13:17:08+01:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "space_tz", in: "2026-01-27 12:17:08+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "space_tz_nanos", in: "2026-01-27 12:17:08.5+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 500000000, time.UTC)},
		{name: "no_tz_is_utc", in: " 2026-01-27 12:17:08 ", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "empty", in: "  ", wantErr: true},
		{name: "invalid", in: "not-a-time", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseSQLiteTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSQLiteTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Fatalf("parseSQLiteTime(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatSQLiteTime_RoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 1, 27, 12, 17, 8, 123, time.FixedZone("X", 3600))
	got, err := parseSQLiteTime(formatSQLiteTime(in))
	if err != nil {
		t.Fatalf("parseSQLiteTime(formatSQLiteTime()) err=%v", err)
	}
	if !got.Equal(in) {
		t.Fatalf("round trip mismatch: got=%s want=%s", got, in.UTC())
	}
}

func TestBindAndDecode(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	if got := bind(value.Date(ts)); got != "2024-03-01T09:30:00Z" {
		t.Fatalf("bind(Date) = %v", got)
	}
	if got := bind(value.Boolean(true)); got != int64(1) {
		t.Fatalf("bind(true) = %v", got)
	}
	if got := bind(value.Boolean(false)); got != int64(0) {
		t.Fatalf("bind(false) = %v", got)
	}
	if got := bind(value.Null{}); got != nil {
		t.Fatalf("bind(Null) = %v", got)
	}

	if got, ok := decode("timestamp", "2024-03-01T09:30:00Z").(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("decode(TIMESTAMP) = %v", got)
	}
	if got := decode("TIMESTAMP", "garbage"); got != "garbage" {
		t.Fatalf("decode(TIMESTAMP, garbage) = %v", got)
	}
	if got := decode("BOOLEAN", int64(0)); got != false {
		t.Fatalf("decode(BOOLEAN) = %v", got)
	}
	if got := decode("TEXT", "x"); got != "x" {
		t.Fatalf("decode(TEXT) = %v", got)
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"", ":memory:"},
		{":memory:", ":memory:"},
		{"out.db", "out.db?_pragma=busy_timeout(5000)"},
		{"file:out.db?mode=rwc", "file:out.db?mode=rwc&_pragma=busy_timeout(5000)"},
		{"x.db?_pragma=busy_timeout(100)", "x.db?_pragma=busy_timeout(100)"},
	}
	for _, tt := range tests {
		if got := dsn(tt.in); got != tt.want {
			t.Fatalf("dsn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
