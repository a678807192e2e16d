package locations

// Groundwater extraction stage categories used by the CGWB assessment methodology.
const (
	StatusSafe          = "Safe"
	StatusSemiCritical  = "Semi-Critical"
	StatusCritical      = "Critical"
	StatusOverExploited = "Over-Exploited"
)

// ClassifyStage maps a stage-of-extraction percentage to its assessment category.
// Boundaries are inclusive on the upper side: 100 is Over-Exploited, 90 is Critical,
// 70 is Semi-Critical.
func ClassifyStage(percent float64) string {
	switch {
	case percent >= 100:
		return StatusOverExploited
	case percent >= 90:
		return StatusCritical
	case percent >= 70:
		return StatusSemiCritical
	default:
		return StatusSafe
	}
}
