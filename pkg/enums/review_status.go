package enums

import (
	"fmt"
	"strings"
)

// ReviewStatus is the review_status column on the reconciliation tables.
type ReviewStatus string

const (
	ReviewStatusPending        ReviewStatus = "Pending Review"
	ReviewStatusReviewed       ReviewStatus = "Reviewed"
	ReviewStatusAutoReconciled ReviewStatus = "Auto-reconciled"
)

// ReviewFilterAll selects every reconciliation row regardless of status.
const ReviewFilterAll = "All"

// AutoReconciledReviewer is the reviewed_by value stamped by the automated matcher.
const AutoReconciledReviewer = "Auto-reconciled"

var validReviewStatuses = []ReviewStatus{
	ReviewStatusPending,
	ReviewStatusReviewed,
	ReviewStatusAutoReconciled,
}

// ReviewStatuses lists the selectable statuses in display order.
func ReviewStatuses() []ReviewStatus {
	out := make([]ReviewStatus, len(validReviewStatuses))
	copy(out, validReviewStatuses)
	return out
}

func (s ReviewStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known review status.
func (s ReviewStatus) IsValid() bool {
	for _, candidate := range validReviewStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReviewFilter accepts a review status or "All". An empty value means Pending Review.
func ParseReviewFilter(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return string(ReviewStatusPending), nil
	}
	if strings.EqualFold(trimmed, ReviewFilterAll) {
		return ReviewFilterAll, nil
	}
	for _, candidate := range validReviewStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return string(candidate), nil
		}
	}
	return "", fmt.Errorf("invalid review status %q", value)
}
