package events

import (
	"fmt"
	"sort"
	"time"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
	"BrentShift/pkg/util"
)

// Associator pairs each change point with the nearest catalog event inside a tolerance window.
type Associator struct{}

var _ domsvc.Associator = (*Associator)(nil)

func NewAssociator() *Associator { return &Associator{} }

// Associate returns one Association per change point, in change-point order. Unmatched change
// points are kept and marked unexplained.
func (a *Associator) Associate(changePoints []models.ChangePoint, events []models.EventRecord, toleranceDays int) ([]models.Association, error) {
	if toleranceDays <= 0 {
		return nil, fmt.Errorf("%w: tolerance_days must be positive, got %d", domsvc.ErrConfiguration, toleranceDays)
	}

	sorted := make([]models.EventRecord, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]models.Association, 0, len(changePoints))
	for _, cp := range changePoints {
		out = append(out, associate(cp, sorted, toleranceDays))
	}
	return out, nil
}

func associate(cp models.ChangePoint, sorted []models.EventRecord, tol int) models.Association {
	day := util.TruncateDay(cp.Date)
	from := day.AddDate(0, 0, -tol)
	i := sort.Search(len(sorted), func(k int) bool { return !util.TruncateDay(sorted[k].Date).Before(from) })

	best, bestDist := -1, 0
	for ; i < len(sorted); i++ {
		d := util.DaysBetween(day, sorted[i].Date)
		if d > tol {
			break
		}
		if d < 0 {
			d = -d
		}
		// strict comparison keeps the earliest event on ties
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 {
		return models.Association{ChangePoint: cp, Status: models.AssociationUnexplained}
	}
	ev := sorted[best]
	return models.Association{
		ChangePoint:  cp,
		Event:        &ev,
		DistanceDays: bestDist,
		Confidence:   Confidence(bestDist, tol),
		Status:       models.AssociationExplained,
	}
}

// Confidence decays linearly from 1 at distance zero to 0 at the tolerance.
func Confidence(distanceDays, toleranceDays int) float64 {
	if toleranceDays <= 0 {
		return 0
	}
	return max(0, 1-float64(distanceDays)/float64(toleranceDays))
}

// Filter returns the events dated within [from, to]; zero bounds are open.
func Filter(events []models.EventRecord, from, to time.Time) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(events))
	for _, e := range events {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}
