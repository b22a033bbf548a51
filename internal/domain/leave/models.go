package leave

import "time"

type ApprovalFlow struct {
	PM     bool `json:"pm"`
	Leader bool `json:"leader"`
	HR     bool `json:"hr"`
}

type LeaveRequest struct {
	ID                string
	UserID            string
	UserName          string
	Type              Type
	StartDate         time.Time
	EndDate           time.Time
	ReturnDate        time.Time
	DaysRequested     int
	HoursRequested    float64
	Justification     string
	HandoverTasks     string
	ResponsiblePerson string
	MitigationPlan    string
	Status            Status
	ApprovalFlow      ApprovalFlow
	Comments          string
	RequestDate       time.Time
	IsPartialDay      bool
	StartTime         string
	EndTime           string
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Outcome is the result of a workflow transition.
type Outcome struct {
	Status   Status
	Flow     ApprovalFlow
	Comments string
}

// Input is a decoded JSON body for create or field edit.
type Input map[string]any

type ListFilter struct {
	OwnerID string
	Status  Status
}

// Scope describes which requests a principal may see.
type Scope struct {
	All    bool
	Filter ListFilter
}
