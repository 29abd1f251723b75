//go:build unit

package device

import (
	"errors"
	"testing"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in       string
		expected Selector
	}{
		{"VPUX", Selector{Kind: "VPUX", Index: AnyIndex}},
		{"VPUX.1", Selector{Kind: "VPUX", Index: 1}},
		{"sim", Selector{Kind: "SIM", Index: AnyIndex}},
		{" HAILO.0 ", Selector{Kind: "HAILO", Index: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSelector(tt.in)
			if err != nil {
				t.Fatalf("ParseSelector(%q) failed: %v", tt.in, err)
			}
			if got != tt.expected {
				t.Errorf("ParseSelector(%q) = %+v, expected %+v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestParseSelectorRejects(t *testing.T) {
	for _, in := range []string{"", ".1", "VPUX.", "VPUX.-1", "VPUX.a", "VP UX", "VPUX/1"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseSelector(in); !errors.Is(err, ErrInvalidSelector) {
				t.Errorf("ParseSelector(%q) error = %v, expected ErrInvalidSelector", in, err)
			}
		})
	}
}

func TestSelectorString(t *testing.T) {
	if s := (Selector{Kind: "VPUX", Index: AnyIndex}).String(); s != "VPUX" {
		t.Errorf("expected VPUX, got %s", s)
	}
	if s := (Selector{Kind: "HAILO", Index: 2}).String(); s != "HAILO.2" {
		t.Errorf("expected HAILO.2, got %s", s)
	}
}
