package value

import (
	"errors"
	"testing"
	"time"

	"csvingest/internal/schema"
)

//
// ParseInteger / ParseReal / HasLeadingZero
//

func TestParseInteger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"-17", -17, true},
		{"+5", 5, true},
		{"007", 7, true},
		{"", 0, false},
		{"-", 0, false},
		{"1.0", 0, false},
		{"1e3", 0, false},
		{"1_000", 0, false},
		{"12a", 0, false},
		{"99999999999999999999", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseInteger(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseInteger(%q) = (%d,%v), want (%d,%v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseReal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1", 1, true},
		{"1.5", 1.5, true},
		{"-0.25", -0.25, true},
		{".5", 0.5, true},
		{"5.", 5, true},
		{"1e3", 1000, true},
		{"2.5E-2", 0.025, true},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"0x1p-2", 0, false},
		{"1e", 0, false},
		{".", 0, false},
		{"1.2.3", 0, false},
		{"1,5", 0, false},
		{"9223372036854775807", 9223372036854775807, true},
		{"12345678901234567890123", 0, false},
		{"-98765432109876543210987", 0, false},
		{"12345678901234567890123.0", 12345678901234567890123.0, true},
	}

	for _, tt := range tests {
		got, ok := ParseReal(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseReal(%q) = (%v,%v), want (%v,%v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsIntegerLiteral(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"0":                       true,
		"-12":                     true,
		"12345678901234567890123": true,
		"+":                       false,
		"1.0":                     false,
		"1e3":                     false,
		" 1":                      false,
	} {
		if got := IsIntegerLiteral(in); got != want {
			t.Fatalf("IsIntegerLiteral(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHasLeadingZero(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"007":   true,
		"-0123": true,
		"00.5":  true,
		"0":     false,
		"-0":    false,
		"0.5":   false,
		"10":    false,
		"":      false,
	} {
		if got := HasLeadingZero(in); got != want {
			t.Fatalf("HasLeadingZero(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseBoolean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"Yes", true, true},
		{"1", true, true},
		{"false", false, true},
		{"No", false, true},
		{"0", false, true},
		{"t", false, false},
		{"y", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		got, ok := ParseBoolean(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("ParseBoolean(%q) = (%v,%v), want (%v,%v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

//
// ParseDate
//

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15 10:42:00", time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)},
		{"2024-03-15T10:42:00", time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)},
		{"2024-03-15T10:42:00+02:00", time.Date(2024, 3, 15, 8, 42, 0, 0, time.UTC)},
		{"2024-03-15 10:42:00 UTC", time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)},
		{"2024-03-15 10:42:00.250", time.Date(2024, 3, 15, 10, 42, 0, 250_000_000, time.UTC)},
		{"3/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"03/05/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"3/15/24, 10:42 AM", time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)},
		{"15 Mar 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"Mar 2020", time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if !ok {
			t.Fatalf("ParseDate(%q) failed", tt.in)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseDate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "2024-13-40", "15/03/2024", "12345"} {
		if _, ok := ParseDate(bad); ok {
			t.Fatalf("ParseDate(%q) unexpectedly succeeded", bad)
		}
	}
}

//
// Coerce
//

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		typ     schema.ColumnType
		want    Value
		wantErr bool
	}{
		{"empty is null for integer", "", schema.Integer, Null{}, false},
		{"whitespace is null for text", "   ", schema.Text, Null{}, false},
		{"integer", " 42 ", schema.Integer, Integer(42), false},
		{"integer failure", "abc", schema.Integer, Null{}, true},
		{"real", "2.5", schema.Real, Real(2.5), false},
		{"real accepts integer form", "3", schema.Real, Real(3), false},
		{"real rejects digits beyond int64", "12345678901234567890123", schema.Real, Null{}, true},
		{"boolean yes", "YES", schema.Boolean, Boolean(true), false},
		{"boolean failure", "maybe", schema.Boolean, Null{}, true},
		{"date", "2024-01-02", schema.Date, Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), false},
		{"date failure", "soon", schema.Date, Null{}, true},
		{"text trims", "  hi  ", schema.Text, Text("hi"), false},
		{"text keeps leading zeros", "007", schema.Text, Text("007"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Coerce(tt.raw, tt.typ)
			if tt.wantErr {
				if !errors.Is(err, ErrNotCoercible) {
					t.Fatalf("Coerce(%q, %s) err = %v, want ErrNotCoercible", tt.raw, tt.typ, err)
				}
				if !IsNull(got) {
					t.Fatalf("Coerce(%q, %s) = %v, want Null on failure", tt.raw, tt.typ, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%q, %s) unexpected err: %v", tt.raw, tt.typ, err)
			}
			if d, ok := tt.want.(Date); ok {
				gd, ok := got.(Date)
				if !ok || !time.Time(gd).Equal(time.Time(d)) {
					t.Fatalf("Coerce(%q, %s) = %v, want %v", tt.raw, tt.typ, got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("Coerce(%q, %s) = %#v, want %#v", tt.raw, tt.typ, got, tt.want)
			}
		})
	}
}

func TestNative(t *testing.T) {
	t.Parallel()

	if Native(Null{}) != nil {
		t.Fatalf("Native(Null) should be nil")
	}
	if got := Native(Integer(3)); got != int64(3) {
		t.Fatalf("Native(Integer) = %#v", got)
	}
	if got := Native(Boolean(true)); got != true {
		t.Fatalf("Native(Boolean) = %#v", got)
	}
	if got := Native(Text("x")); got != "x" {
		t.Fatalf("Native(Text) = %#v", got)
	}
}
