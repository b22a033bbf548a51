package leave

import (
	"errors"
	"math"
	"strings"
	"time"
)

// CalculateDays returns the inclusive day count between start and end.
func CalculateDays(start, end time.Time) (int, error) {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return 0, errors.New("end date before start date")
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// CalculateHours returns the decimal hours between two HH:MM clock times.
func CalculateHours(startTime, endTime string) (float64, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return 0, err
	}
	end, err := ParseClock(endTime)
	if err != nil {
		return 0, err
	}
	if !end.After(start) {
		return 0, errors.New("end time must be after start time")
	}
	hours := end.Sub(start).Minutes() / 60
	return math.Round(hours*100) / 100, nil
}

// ParseClock accepts HH:MM and HH:MM:SS.
func ParseClock(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(timeLayout, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse("15:04:05", raw)
	if err != nil {
		return time.Time{}, errors.New("must be a time in HH:MM format")
	}
	return parsed, nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and keeps the calendar date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(dateLayout, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("must be a valid date in YYYY-MM-DD format")
	}
	return dateOnly(parsed), nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// derive fills the computed quantities. Days and hours are exclusive.
func derive(req *LeaveRequest) {
	if req.IsPartialDay {
		req.DaysRequested = 0
		hours, err := CalculateHours(req.StartTime, req.EndTime)
		if err != nil {
			hours = 0
		}
		req.HoursRequested = hours
		return
	}
	req.StartTime, req.EndTime = "", ""
	req.HoursRequested = 0
	days, err := CalculateDays(req.StartDate, req.EndDate)
	if err != nil {
		days = 0
	}
	req.DaysRequested = days
}

// check validates the cross-field rules shared by create and edit.
func check(req LeaveRequest) []Issue {
	var issues []Issue
	if req.Type == "" {
		issues = append(issues, Issue{Field: "type", Reason: "is required"})
	}
	if req.StartDate.IsZero() {
		issues = append(issues, Issue{Field: "startDate", Reason: "is required"})
	}
	if req.EndDate.IsZero() {
		issues = append(issues, Issue{Field: "endDate", Reason: "is required"})
	}
	if req.ReturnDate.IsZero() {
		issues = append(issues, Issue{Field: "returnDate", Reason: "is required"})
	}
	if strings.TrimSpace(req.HandoverTasks) == "" {
		issues = append(issues, Issue{Field: "handoverTasks", Reason: "is required"})
	}
	if strings.TrimSpace(req.ResponsiblePerson) == "" {
		issues = append(issues, Issue{Field: "responsiblePerson", Reason: "is required"})
	}

	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		issues = append(issues, Issue{Field: "endDate", Reason: "must be on or after startDate"})
	}
	if !req.EndDate.IsZero() && !req.ReturnDate.IsZero() {
		// Partial-day leave may end with a return on the same day.
		if req.IsPartialDay && req.ReturnDate.Before(req.EndDate) {
			issues = append(issues, Issue{Field: "returnDate", Reason: "must be on or after endDate"})
		}
		if !req.IsPartialDay && !req.ReturnDate.After(req.EndDate) {
			issues = append(issues, Issue{Field: "returnDate", Reason: "must be after endDate"})
		}
	}

	if req.IsPartialDay {
		if req.Type != "" && req.Type != TypePermission {
			issues = append(issues, Issue{Field: "isPartialDay", Reason: "only allowed for Permission requests"})
		}
		if req.StartTime == "" {
			issues = append(issues, Issue{Field: "startTime", Reason: "is required for partial-day requests"})
		}
		if req.EndTime == "" {
			issues = append(issues, Issue{Field: "endTime", Reason: "is required for partial-day requests"})
		}
		if req.StartTime != "" && req.EndTime != "" {
			if _, err := CalculateHours(req.StartTime, req.EndTime); err != nil {
				issues = append(issues, Issue{Field: "endTime", Reason: err.Error()})
			}
		}
		if !req.StartDate.IsZero() && !req.EndDate.IsZero() && !req.StartDate.Equal(req.EndDate) {
			issues = append(issues, Issue{Field: "endDate", Reason: "must equal startDate for partial-day requests"})
		}
	}
	return issues
}
