package events

import (
	"errors"
	"math"
	"testing"
	"time"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

var origin = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func at(days int) time.Time { return origin.AddDate(0, 0, days) }

func TestAssociateScoresNearestEvent(t *testing.T) {
	a := NewAssociator()
	cps := []models.ChangePoint{{Index: 1, Date: at(100)}}

	got, err := a.Associate(cps, []models.EventRecord{{Date: at(103), Title: "near"}}, 5)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if got[0].Event == nil || got[0].Event.Title != "near" {
		t.Fatalf("expected the near event, got %+v", got[0])
	}
	if got[0].DistanceDays != 3 || math.Abs(got[0].Confidence-0.4) > 1e-12 {
		t.Fatalf("distance %d confidence %v", got[0].DistanceDays, got[0].Confidence)
	}
	if got[0].Status != models.AssociationExplained {
		t.Fatalf("status %q", got[0].Status)
	}

	got, err = a.Associate(cps, []models.EventRecord{{Date: at(200), Title: "far"}}, 5)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if got[0].Event != nil || got[0].Confidence != 0 || got[0].Status != models.AssociationUnexplained {
		t.Fatalf("expected an unexplained change point, got %+v", got[0])
	}
}

func TestAssociateTieGoesToEarliestEvent(t *testing.T) {
	events := []models.EventRecord{
		{Date: at(104), Title: "after"},
		{Date: at(96), Title: "before"},
		{Date: at(150), Title: "outside"},
	}
	got, err := NewAssociator().Associate([]models.ChangePoint{{Date: at(100)}}, events, 10)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if got[0].Event == nil || got[0].Event.Title != "before" || got[0].DistanceDays != 4 {
		t.Fatalf("expected the earlier of two equidistant events, got %+v", got[0])
	}
}

func TestAssociateKeepsOrderAndBoundary(t *testing.T) {
	cps := []models.ChangePoint{{Index: 10, Date: at(10)}, {Index: 50, Date: at(50)}, {Index: 90, Date: at(90)}}
	events := []models.EventRecord{{Date: at(60), Title: "edge"}, {Date: at(8), Title: "early"}}

	got, err := NewAssociator().Associate(cps, events, 10)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected one association per change point, got %d", len(got))
	}
	if got[0].Event == nil || got[0].Event.Title != "early" {
		t.Fatalf("first change point: %+v", got[0])
	}
	if got[1].Event == nil || got[1].Event.Title != "edge" || got[1].Confidence != 0 {
		t.Fatalf("an event exactly at the tolerance matches with zero confidence, got %+v", got[1])
	}
	if got[2].Event != nil {
		t.Fatalf("last change point should be unexplained, got %+v", got[2])
	}
	if got[2].ChangePoint.Index != 90 {
		t.Fatalf("order not preserved")
	}
}

func TestAssociateRejectsNonPositiveTolerance(t *testing.T) {
	_, err := NewAssociator().Associate(nil, nil, 0)
	if !errors.Is(err, domsvc.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCatalogAndFilter(t *testing.T) {
	c := Catalog()
	if len(c) != 12 {
		t.Fatalf("catalog has %d events", len(c))
	}
	for i := 1; i < len(c); i++ {
		if !c[i-1].Date.Before(c[i].Date) {
			t.Fatalf("catalog not ordered at %d", i)
		}
	}
	c[0].Title = "mutated"
	if Catalog()[0].Title == "mutated" {
		t.Fatalf("catalog must return a copy")
	}

	got := Filter(Catalog(), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
	if len(got) != 2 {
		t.Fatalf("expected the two 2020 events, got %d", len(got))
	}
}
