package patient

import (
	"testing"
	"time"
)

func TestAddCategoryOnlyGrows(t *testing.T) {
	p := &Patient{}

	p.AddCategory(CategoryDR)
	p.AddCategory(CategoryAMD)
	p.AddCategory(CategoryDR) // duplicate

	if len(p.Categories) != 2 {
		t.Fatalf("categories = %v", p.Categories)
	}
	if !p.HasCategory(CategoryDR) || !p.HasCategory(CategoryAMD) {
		t.Fatalf("categories = %v", p.Categories)
	}
	if p.HasCategory(CategoryRVO) {
		t.Fatal("RVO should not be present")
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	born := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{BirthDate: &born}
	if got := p.Age(now); got != 36 {
		t.Fatalf("age = %d", got)
	}

	// Birthday not yet reached this year.
	born = time.Date(1990, 12, 1, 0, 0, 0, 0, time.UTC)
	p = &Patient{BirthDate: &born}
	if got := p.Age(now); got != 35 {
		t.Fatalf("age = %d", got)
	}

	p = &Patient{}
	if got := p.Age(now); got != -1 {
		t.Fatalf("age = %d for unknown birth date", got)
	}
}

func TestValidStatuses(t *testing.T) {
	for _, s := range []string{StatusPreMonitoring, StatusMonitoring, StatusReview, StatusCompleted, StatusPublished} {
		if !ValidStatuses[s] {
			t.Fatalf("status %q should be valid", s)
		}
	}
	if ValidStatuses["Archived"] {
		t.Fatal("unknown status accepted")
	}
}
