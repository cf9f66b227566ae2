package billing

import (
	"time"

	"github.com/netpesa/netpesa/app/models"
)

// AddPlanDuration returns the expiry for one plan period starting at base.
// Unrecognized plans get the shortest period so a bad code never over-grants.
func AddPlanDuration(base time.Time, plan string) time.Time {
	switch plan {
	case models.PlanWeekly:
		return base.Add(7 * 24 * time.Hour)
	case models.PlanDaily:
		return base.Add(24 * time.Hour)
	case models.PlanSixHour:
		return base.Add(6 * time.Hour)
	default:
		return base.Add(time.Hour)
	}
}
