package facility

import (
	"strings"
	"testing"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"", IntervalRaw, false},
		{"raw", IntervalRaw, false},
		{"1h", IntervalHourly, false},
		{"hourly", IntervalHourly, false},
		{"1d", IntervalDaily, false},
		{"daily", IntervalDaily, false},
		{"fortnightly", "", true},
		{"1H", "", true},
	}

	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInterval(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInterval(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDescribeLayout(t *testing.T) {
	layout := DescribeLayout()

	if !strings.HasPrefix(layout, "4 zones, 11 sensors:") {
		t.Errorf("layout header = %q", strings.SplitN(layout, "\n", 2)[0])
	}
	for _, z := range Zones {
		if !strings.Contains(layout, z.Name+" ("+z.ID+")") {
			t.Errorf("layout missing zone %s", z.ID)
		}
	}
	for _, s := range Sensors {
		if !strings.Contains(layout, "("+s.ID+")") {
			t.Errorf("layout missing sensor %s", s.ID)
		}
	}
	if !strings.Contains(layout, "Freezer (-20 to -16°C target)") {
		t.Errorf("layout missing the freezer target band:\n%s", layout)
	}
}
