package index

import (
	"errors"
	"testing"
)

func TestParseDisplayAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"2.5", 2_500_000_000, false},
		{"1", 1_000_000_000, false},
		{"0.1", 100_000_000, false},
		{" 0.000000001 ", 1, false},
		{"0.0000000019", 1, false}, // sub-unit precision truncates
		{"0", 0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
		{"99999999999999999999", 0, true},
		{"1/2", 0, true},
		{"0x10", 0, true},
		{"1.5e2", 150_000_000_000, false},
		{".5", 500_000_000, false},
		{"1e9999", 0, true},
		{"1.2.3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDisplayAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("err = %v, want ErrInvalidAmount", err)
			}
			if got != tt.want {
				t.Errorf("ParseDisplayAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDisplayRoundTrip(t *testing.T) {
	for _, p := range []uint64{0, 1, 999, 1_000_000_000, 2_500_000_000, 123_456_789_012, 1 << 49} {
		got, err := FromDisplay(ToDisplay(p))
		if err != nil {
			t.Fatalf("FromDisplay(ToDisplay(%d)): %v", p, err)
		}
		if got != p {
			t.Errorf("round trip of %d = %d", p, got)
		}
	}
}

func TestFromDisplayRejectsBadInput(t *testing.T) {
	for _, v := range []float64{-1, -0.5} {
		if _, err := FromDisplay(v); err == nil {
			t.Errorf("FromDisplay(%v) should fail", v)
		}
	}
}

func TestFormatDisplay(t *testing.T) {
	if got := FormatDisplay(2_500_000_000, 4); got != "2.5000" {
		t.Errorf("FormatDisplay = %q, want 2.5000", got)
	}
	if got := FormatDisplay(123_456, 4); got != "0.0001" {
		t.Errorf("FormatDisplay = %q, want 0.0001", got)
	}
}
