// Package worktime holds the pure payroll arithmetic of time applications.
package worktime

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
)

const (
	// MinRejectionReasonLength is counted in characters after trimming.
	MinRejectionReasonLength = 10

	singleDayMaxDays = 0
	batchMaxDays     = 7
)

// Rejection categories.
const (
	CategoryTimeMismatch       = "TIME_MISMATCH"
	CategoryMissingInformation = "MISSING_INFORMATION"
	CategoryPolicyViolation    = "POLICY_VIOLATION"
	CategoryDuplicate          = "DUPLICATE"
	CategoryOther              = "OTHER"
)

var rejectionCategories = map[string]struct{}{
	CategoryTimeMismatch:       {},
	CategoryMissingInformation: {},
	CategoryPolicyViolation:    {},
	CategoryDuplicate:          {},
	CategoryOther:              {},
}

// CalculateWorkMinutes walks the stamps in time order and sums every
// WORK→REST and WORK→END span. Spans are accumulated in milliseconds and the
// total is floored to whole minutes once.
func CalculateWorkMinutes(stamps []*models.WorkTimestamp) int64 {
	ordered := make([]*models.WorkTimestamp, len(stamps))
	copy(ordered, stamps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var totalMillis int64
	var workStart *time.Time
	for _, ts := range ordered {
		switch ts.Status {
		case models.TimestampWork:
			if workStart == nil {
				t := ts.Timestamp
				workStart = &t
			}
		case models.TimestampRest, models.TimestampEnd:
			if workStart != nil {
				totalMillis += ts.Timestamp.Sub(*workStart).Milliseconds()
				workStart = nil
			}
		}
	}
	return totalMillis / time.Minute.Milliseconds()
}

// ApplicationTypeFor derives the type from the number of calendar days
// between start and end.
func ApplicationTypeFor(start, end time.Time) models.ApplicationType {
	days := calendarDays(start, end)
	switch {
	case days <= singleDayMaxDays:
		return models.ApplicationSingle
	case days <= batchMaxDays:
		return models.ApplicationBatch
	default:
		return models.ApplicationPeriod
	}
}

func calendarDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

// AmountFor is (minutes / 60) × hourly rate, rounded to cents.
func AmountFor(minutes int64, hourlyRate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(minutes).Mul(hourlyRate).Div(decimal.NewFromInt(60)).Round(2)
}

// ValidRejectionReason reports whether reason is long enough.
func ValidRejectionReason(reason string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(reason)) >= MinRejectionReasonLength
}

// ValidRejectionCategory reports whether category is a known category.
func ValidRejectionCategory(category string) bool {
	_, ok := rejectionCategories[category]
	return ok
}

// LinkStatusFor is the linkage a timestamp carries while an application in
// the given status references it.
func LinkStatusFor(status models.ApplicationStatus) models.LinkStatus {
	switch status {
	case models.ApplicationPending:
		return models.LinkPending
	case models.ApplicationApproved, models.ApplicationRequested:
		return models.LinkApproved
	case models.ApplicationPaid:
		return models.LinkPaid
	default:
		return models.LinkNone
	}
}
