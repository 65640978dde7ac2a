package browser

import (
	"math"

	"web-task-agent/internal/entity"
)

// closestBoxIndex picks the match whose geometry is nearest the target box
// under L1 distance over position and size. Matches without a box are
// skipped; ties keep the earliest index; -1 means nothing was measurable.
func closestBoxIndex(boxes []*entity.BoundingBox, target entity.BoundingBox) int {
	best := -1
	bestDist := math.MaxFloat64

	for i, box := range boxes {
		if box == nil {
			continue
		}
		if d := l1Distance(*box, target); d < bestDist {
			best = i
			bestDist = d
		}
	}

	return best
}

func l1Distance(a, b entity.BoundingBox) float64 {
	return math.Abs(a.X-b.X) +
		math.Abs(a.Y-b.Y) +
		math.Abs(a.Width-b.Width) +
		math.Abs(a.Height-b.Height)
}
