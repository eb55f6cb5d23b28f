package esim

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseHitTime(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected time.Time
	}{
		{"year first", "2024-05-21 10:15:30", time.Date(2024, 5, 21, 10, 15, 30, 0, time.UTC)},
		{"year first millis", "2024-05-21 10:15:30.123", time.Date(2024, 5, 21, 10, 15, 30, 123e6, time.UTC)},
		{"day first", "21-05-2024 10:15:30", time.Date(2024, 5, 21, 10, 15, 30, 0, time.UTC)},
		{"day first colon millis", "21-05-2024 10:15:30:123", time.Date(2024, 5, 21, 10, 15, 30, 123e6, time.UTC)},
		{"short millis", "2024-05-21 10:15:30.5", time.Date(2024, 5, 21, 10, 15, 30, 500e6, time.UTC)},
		{"surrounding whitespace", " 2024-05-21 10:15:30 ", time.Date(2024, 5, 21, 10, 15, 30, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHitTime(tc.raw)
			if err != nil {
				t.Fatalf("Expected no error for %q, got %v", tc.raw, err)
			}
			if !got.Equal(tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
			if got.Location() != time.UTC {
				t.Errorf("Expected UTC, got %v", got.Location())
			}
		})
	}
}

func TestParseHitTimeFormatsAgree(t *testing.T) {
	dayFirst, err := ParseHitTime("21-05-2024 10:15:30:123")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	yearFirst, err := ParseHitTime("2024-05-21 10:15:30.123")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !dayFirst.Equal(yearFirst) {
		t.Errorf("Expected identical instants, got %v and %v", dayFirst, yearFirst)
	}
}

func TestParseHitTimeInvalid(t *testing.T) {
	invalid := []string{
		"",
		"yesterday",
		"2024-13-01 10:15:30",
		"21/05/2024 10:15:30",
		"2024-05-21T10:15:30Z",
	}

	for _, raw := range invalid {
		if _, err := ParseHitTime(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

// TestParseHitTimeProperties checks that every upstream spelling of an instant parses to it
func TestParseHitTimeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	epoch := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	span := int64(15 * 365 * 24 * 3600)

	properties.Property("all four formats parse to the same instant", prop.ForAll(
		func(offset int64, millis int) bool {
			want := time.Unix(epoch+offset, int64(millis)*int64(time.Millisecond)).UTC()
			ms := fmt.Sprintf("%03d", millis)

			spellings := []string{
				want.Format("2006-01-02 15:04:05") + "." + ms,
				want.Format("02-01-2006 15:04:05") + ":" + ms,
				want.Format("02-01-2006 15:04:05") + "." + ms,
			}
			for _, raw := range spellings {
				got, err := ParseHitTime(raw)
				if err != nil || !got.Equal(want) {
					return false
				}
			}

			whole, err := ParseHitTime(want.Format("2006-01-02 15:04:05"))
			return err == nil && whole.Equal(want.Truncate(time.Second))
		},
		gen.Int64Range(0, span),
		gen.IntRange(0, 999),
	))

	properties.TestingRun(t)
}
