package rewards

import "fmt"

// Compute maps an activity to its point delta. It has no side effects;
// ok is false for activities that earn nothing.
func Compute(a Activity) (Delta, bool) {
	if a.ComplaintID == "" || a.UserID == "" {
		return Delta{}, false
	}

	d := Delta{
		Key:         IdempotencyKey(a),
		ComplaintID: a.ComplaintID,
		EventType:   a.Type,
		UserID:      a.UserID,
		CreditedAt:  a.OccurredAt.UTC(),
	}

	switch a.Type {
	case EventReportVerified:
		d.Points = PointsReportVerified
		d.Reason = fmt.Sprintf("report %s accepted for verification", a.ComplaintID)
	case EventVote:
		d.Points = PointsVote
		d.Reason = fmt.Sprintf("verified complaint %s", a.ComplaintID)
	case EventRating:
		d.Points = PointsRatingBase
		if a.Overall == 5 {
			d.Points += PointsRatingTopScore
		}
		if len(a.Tags) > 0 {
			d.Points += PointsRatingFeedback
		}
		d.Reason = fmt.Sprintf("rated resolution of %s", a.ComplaintID)
	case EventShare:
		d.Points = PointsShare
		d.Reason = fmt.Sprintf("shared resolution of %s", a.ComplaintID)
	default:
		return Delta{}, false
	}
	return d, true
}
