package prescription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-api/internal/model"
)

func TestParseDurationDays(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"10 days", 10, true},
		{"1 day", 1, true},
		{"2 weeks", 14, true},
		{"1 Week", 7, true},
		{"1 month", 30, true},
		{"3 MONTHS", 90, true},
		{"5days", 5, true},
		{"take for 7 days then stop", 7, true},
		{"14", 14, true},
		{"  21 tablets", 21, true},
		{"as needed", 0, false},
		{"", 0, false},
		{"10 weekdays", 10, true},
		{"200000 days", 200000, true},
		{"3650001 days", maxDurationDays, true},
		{"999999999 months", maxDurationDays, true},
		{"99999999999999999999999 days", maxDurationDays, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDurationDays(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveValidUntil(t *testing.T) {
	issued := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	explicit := issued.Add(48 * time.Hour)

	p := &model.Prescription{
		IssueDate:   issued,
		Medications: model.Medications{{Name: "Amoxicillin", Duration: "10 days"}, {Name: "Ibuprofen", Duration: "2 days"}},
	}
	until, ok := EffectiveValidUntil(p)
	assert.True(t, ok)
	assert.Equal(t, issued.Add(10*24*time.Hour), until)

	p.ValidUntil = &explicit
	until, ok = EffectiveValidUntil(p)
	assert.True(t, ok)
	assert.Equal(t, explicit, until)

	_, ok = EffectiveValidUntil(&model.Prescription{IssueDate: issued, Medications: model.Medications{{Name: "Vitamin D", Duration: "ongoing"}}})
	assert.False(t, ok)

	_, ok = EffectiveValidUntil(&model.Prescription{IssueDate: issued})
	assert.False(t, ok)
}

func TestIsExpiredBoundary(t *testing.T) {
	issued := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	p := &model.Prescription{
		IssueDate:   issued,
		Status:      model.PrescriptionStatusActive,
		Medications: model.Medications{{Name: "Amoxicillin", Duration: "10 days"}},
	}
	deadline := issued.Add(10 * 24 * time.Hour)

	assert.False(t, IsExpired(p, deadline.Add(-time.Nanosecond)))
	assert.True(t, IsExpired(p, deadline))
	assert.True(t, IsExpired(p, deadline.Add(time.Hour)))

	p.Medications[0].Duration = "2 weeks"
	assert.False(t, IsExpired(p, issued.Add(14*24*time.Hour-time.Second)))
	assert.True(t, IsExpired(p, issued.Add(14*24*time.Hour)))

	p.Medications[0].Duration = "1 month"
	assert.True(t, IsExpired(p, issued.Add(30*24*time.Hour)))

	p.Status = model.PrescriptionStatusCancelled
	assert.False(t, IsExpired(p, deadline.Add(time.Hour)))

	p.Status = model.PrescriptionStatusActive
	p.Medications[0].Duration = "until symptoms clear"
	assert.False(t, IsExpired(p, issued.AddDate(10, 0, 0)))
}

func TestLongDurationStaysActive(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, duration := range []string{"200000 days", "999999999 months", "99999999999999999999999 days"} {
		t.Run(duration, func(t *testing.T) {
			p := &model.Prescription{
				Status:      model.PrescriptionStatusActive,
				IssueDate:   issued,
				Medications: model.Medications{{Name: "Levothyroxine", Duration: duration}},
			}

			until, ok := EffectiveValidUntil(p)
			assert.True(t, ok)
			assert.True(t, until.After(issued))
			assert.False(t, IsExpired(p, issued))
			assert.False(t, IsExpired(p, issued.AddDate(100, 0, 0)))
		})
	}

	p := &model.Prescription{IssueDate: issued, Medications: model.Medications{{Name: "Levothyroxine", Duration: "200000 days"}}}
	until, _ := EffectiveValidUntil(p)
	assert.Equal(t, issued.AddDate(0, 0, 200000), until)
}
