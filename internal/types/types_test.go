package types

import (
	"testing"
	"time"
)

func TestAuditRowValidate(t *testing.T) {
	valid := AuditRow{
		OrganizationID: 1,
		ReleaseID:      10,
		Version:        "1.2.3",
		DateAdded:      time.Now(),
		Action:         ActionMerge,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid row, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AuditRow)
	}{
		{"missing release id", func(r *AuditRow) { r.ReleaseID = 0 }},
		{"empty version", func(r *AuditRow) { r.Version = "" }},
		{"unknown action", func(r *AuditRow) { r.Action = "vaporized" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := valid
			tt.mutate(&row)
			if err := row.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestDuplicateGroupDateSpread(t *testing.T) {
	base := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &DuplicateGroup{
		Releases: []*Release{
			{ID: 1, DateAdded: base.Add(time.Hour)},
			{ID: 2, DateAdded: base},
			{ID: 3, DateAdded: base.Add(3 * time.Hour)},
		},
	}
	if spread := g.DateSpread(); spread != 3*time.Hour {
		t.Errorf("DateSpread() = %v, want 3h", spread)
	}
	if earliest := g.Earliest(); earliest.ID != 2 {
		t.Errorf("Earliest() = release %d, want 2", earliest.ID)
	}

	empty := &DuplicateGroup{}
	if spread := empty.DateSpread(); spread != 0 {
		t.Errorf("Empty group spread = %v, want 0", spread)
	}
	if earliest := empty.Earliest(); earliest != nil {
		t.Errorf("Empty group earliest = %+v, want nil", earliest)
	}
}
