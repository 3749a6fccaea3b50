package review

import "fmt"

// Recommendation is the merge verdict for a reviewed PR.
type Recommendation string

const (
	AutoMerge              Recommendation = "AUTO_MERGE"
	MergeWithConsideration Recommendation = "MERGE_WITH_CONSIDERATION"
	ManualReview           Recommendation = "MANUAL_REVIEW"
	DoNotMerge             Recommendation = "DO_NOT_MERGE"
)

// maxWarningsForMerge is the warning ceiling for merge-with-consideration.
const maxWarningsForMerge = 3

// Decision is the merge verdict with its supporting counts.
type Decision struct {
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"`
	CriticalCount  int            `json:"critical_count"`
	WarningCount   int            `json:"warning_count"`
}

// Decide maps a review result to a merge decision. It is a pure function of
// the result; labels, reviewers, and forge state play no part.
func Decide(r Result) Decision {
	d := Decision{
		CriticalCount: r.CriticalCount(),
		WarningCount:  r.WarningCount(),
	}

	switch {
	case !r.Approved:
		d.Recommendation = DoNotMerge
		if r.Tests.Ran && !r.Tests.Passed {
			d.Reason = "tests failed"
		} else {
			d.Reason = "review not approved"
		}
	case d.CriticalCount > 0:
		d.Recommendation = DoNotMerge
		d.Reason = fmt.Sprintf("%d critical issue(s)", d.CriticalCount)
	case len(r.Issues) == 0:
		d.Recommendation = AutoMerge
		d.Reason = "clean review"
	case d.WarningCount <= maxWarningsForMerge:
		d.Recommendation = MergeWithConsideration
		d.Reason = fmt.Sprintf("%d warning(s), within merge tolerance", d.WarningCount)
	default:
		d.Recommendation = ManualReview
		d.Reason = fmt.Sprintf("%d warning(s) exceed merge tolerance", d.WarningCount)
	}
	return d
}
