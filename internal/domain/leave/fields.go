package leave

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field maps one attribute of a LeaveRequest between its camelCase wire
// name, its snake_case alias and its database column.
//
// An empty Snake means the field is emitted once under Camel. An empty Camel
// means it is emitted only under Snake.
type Field struct {
	Camel    string
	Snake    string
	Column   string
	Editable bool

	present func(LeaveRequest) any
	decode  func(*LeaveRequest, any) error
	value   func(LeaveRequest) any
}

// Keys lists the wire spellings of the field.
func (f Field) Keys() []string {
	var keys []string
	if f.Camel != "" {
		keys = append(keys, f.Camel)
	}
	if f.Snake != "" && f.Snake != f.Camel {
		keys = append(keys, f.Snake)
	}
	return keys
}

// Writable reports whether the column can appear in an UPDATE SET list.
func (f Field) Writable() bool {
	return f.Column != "" && f.value != nil
}

// Value returns the database value for the column.
func (f Field) Value(req LeaveRequest) any {
	if f.value == nil {
		return nil
	}
	return f.value(req)
}

var Fields = []Field{
	{Camel: "id", Column: "id",
		present: func(r LeaveRequest) any { return r.ID }},
	{Camel: "userId", Snake: "user_id", Column: "user_id",
		present: func(r LeaveRequest) any { return r.UserID }},
	{Camel: "userName",
		present: func(r LeaveRequest) any { return r.UserName }},
	{Camel: "type", Column: "type", Editable: true,
		present: func(r LeaveRequest) any { return string(r.Type) },
		decode:  decodeType,
		value:   func(r LeaveRequest) any { return string(r.Type) }},
	{Camel: "startDate", Snake: "start_date", Column: "start_date", Editable: true,
		present: func(r LeaveRequest) any { return formatDate(r.StartDate) },
		decode:  decodeDate(func(r *LeaveRequest) *time.Time { return &r.StartDate }),
		value:   func(r LeaveRequest) any { return r.StartDate }},
	{Camel: "endDate", Snake: "end_date", Column: "end_date", Editable: true,
		present: func(r LeaveRequest) any { return formatDate(r.EndDate) },
		decode:  decodeDate(func(r *LeaveRequest) *time.Time { return &r.EndDate }),
		value:   func(r LeaveRequest) any { return r.EndDate }},
	{Camel: "returnDate", Snake: "return_date", Column: "return_date", Editable: true,
		present: func(r LeaveRequest) any { return formatDate(r.ReturnDate) },
		decode:  decodeDate(func(r *LeaveRequest) *time.Time { return &r.ReturnDate }),
		value:   func(r LeaveRequest) any { return r.ReturnDate }},
	{Camel: "daysRequested", Snake: "days_requested", Column: "days_requested",
		present: func(r LeaveRequest) any { return r.DaysRequested },
		value:   func(r LeaveRequest) any { return r.DaysRequested }},
	{Camel: "hoursRequested", Snake: "hours_requested", Column: "hours_requested",
		present: func(r LeaveRequest) any { return r.HoursRequested },
		value:   func(r LeaveRequest) any { return r.HoursRequested }},
	{Camel: "justification", Column: "justification", Editable: true,
		present: func(r LeaveRequest) any { return r.Justification },
		decode:  decodeString(func(r *LeaveRequest) *string { return &r.Justification }),
		value:   func(r LeaveRequest) any { return r.Justification }},
	{Camel: "handoverTasks", Snake: "handover_tasks", Column: "handover_tasks", Editable: true,
		present: func(r LeaveRequest) any { return r.HandoverTasks },
		decode:  decodeString(func(r *LeaveRequest) *string { return &r.HandoverTasks }),
		value:   func(r LeaveRequest) any { return r.HandoverTasks }},
	{Camel: "responsiblePerson", Snake: "responsible_person", Column: "responsible_person", Editable: true,
		present: func(r LeaveRequest) any { return r.ResponsiblePerson },
		decode:  decodeString(func(r *LeaveRequest) *string { return &r.ResponsiblePerson }),
		value:   func(r LeaveRequest) any { return r.ResponsiblePerson }},
	{Camel: "mitigationPlan", Snake: "mitigation_plan", Column: "mitigation_plan", Editable: true,
		present: func(r LeaveRequest) any { return r.MitigationPlan },
		decode:  decodeString(func(r *LeaveRequest) *string { return &r.MitigationPlan }),
		value:   func(r LeaveRequest) any { return r.MitigationPlan }},
	{Camel: "status", Column: "status",
		present: func(r LeaveRequest) any { return string(r.Status) }},
	{Camel: "approvalFlow", Snake: "approval_flow", Column: "approval_flow",
		present: func(r LeaveRequest) any {
			return map[string]bool{"pm": r.ApprovalFlow.PM, "leader": r.ApprovalFlow.Leader, "hr": r.ApprovalFlow.HR}
		}},
	{Camel: "comments", Column: "comments",
		present: func(r LeaveRequest) any { return r.Comments }},
	{Camel: "requestDate", Snake: "request_date", Column: "request_date",
		present: func(r LeaveRequest) any {
			if r.RequestDate.IsZero() {
				return formatDate(r.CreatedAt)
			}
			return formatDate(r.RequestDate)
		}},
	{Camel: "isPartialDay", Snake: "is_partial_day", Column: "is_partial_day", Editable: true,
		present: func(r LeaveRequest) any { return r.IsPartialDay },
		decode:  decodeBool(func(r *LeaveRequest) *bool { return &r.IsPartialDay }),
		value:   func(r LeaveRequest) any { return r.IsPartialDay }},
	{Camel: "startTime", Snake: "start_time", Column: "start_time", Editable: true,
		present: func(r LeaveRequest) any { return nullableString(r.StartTime) },
		decode:  decodeClock(func(r *LeaveRequest) *string { return &r.StartTime }),
		value:   func(r LeaveRequest) any { return r.StartTime }},
	{Camel: "endTime", Snake: "end_time", Column: "end_time", Editable: true,
		present: func(r LeaveRequest) any { return nullableString(r.EndTime) },
		decode:  decodeClock(func(r *LeaveRequest) *string { return &r.EndTime }),
		value:   func(r LeaveRequest) any { return r.EndTime }},
	{Camel: "version", Column: "version",
		present: func(r LeaveRequest) any { return r.Version }},
	{Snake: "created_at", Column: "created_at",
		present: func(r LeaveRequest) any { return r.CreatedAt }},
	{Snake: "updated_at", Column: "updated_at",
		present: func(r LeaveRequest) any { return r.UpdatedAt }},
}

// derivedColumns are rewritten on every field edit because they follow from
// the editable ones.
var derivedColumns = []string{"days_requested", "hours_requested", "start_time", "end_time"}

var (
	byKey    = map[string]Field{}
	byColumn = map[string]Field{}
)

func init() {
	for _, f := range Fields {
		for _, key := range f.Keys() {
			byKey[key] = f
		}
		if f.Column != "" {
			byColumn[f.Column] = f
		}
	}
}

func FieldByKey(key string) (Field, bool) {
	f, ok := byKey[key]
	return f, ok
}

func FieldByColumn(column string) (Field, bool) {
	f, ok := byColumn[column]
	return f, ok
}

// Patch is the editable subset of an Input, keyed by column.
type Patch struct {
	values map[string]any
	order  []string
}

// ParsePatch keeps only editable fields. When both spellings of a field are
// present the camelCase one wins. Unknown and read-only keys are dropped.
func ParsePatch(in Input) Patch {
	p := Patch{values: map[string]any{}}
	for _, f := range Fields {
		if !f.Editable {
			continue
		}
		for _, key := range f.Keys() {
			raw, ok := in[key]
			if !ok {
				continue
			}
			p.values[f.Column] = raw
			p.order = append(p.order, f.Column)
			break
		}
	}
	return p
}

func (p Patch) Empty() bool {
	return len(p.order) == 0
}

// Columns returns the patched columns in field-table order.
func (p Patch) Columns() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Apply decodes every patched value onto req and reports decoding issues.
func (p Patch) Apply(req *LeaveRequest) []Issue {
	var issues []Issue
	for _, column := range p.order {
		f := byColumn[column]
		if err := f.decode(req, p.values[column]); err != nil {
			issues = append(issues, Issue{Field: f.Camel, Reason: err.Error()})
		}
	}
	return issues
}

func decodeType(r *LeaveRequest, raw any) error {
	s, err := asString(raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		r.Type = ""
		return nil
	}
	t, ok := ParseType(s)
	if !ok {
		return fmt.Errorf("must be one of %s, %s, %s", TypeVacation, TypePermission, TypeEconomicDay)
	}
	r.Type = t
	return nil
}

func decodeString(target func(*LeaveRequest) *string) func(*LeaveRequest, any) error {
	return func(r *LeaveRequest, raw any) error {
		s, err := asString(raw)
		if err != nil {
			return err
		}
		*target(r) = strings.TrimSpace(s)
		return nil
	}
}

func decodeDate(target func(*LeaveRequest) *time.Time) func(*LeaveRequest, any) error {
	return func(r *LeaveRequest, raw any) error {
		s, err := asString(raw)
		if err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*target(r) = time.Time{}
			return nil
		}
		parsed, err := ParseDate(s)
		if err != nil {
			return err
		}
		*target(r) = parsed
		return nil
	}
}

func decodeClock(target func(*LeaveRequest) *string) func(*LeaveRequest, any) error {
	return func(r *LeaveRequest, raw any) error {
		s, err := asString(raw)
		if err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*target(r) = ""
			return nil
		}
		parsed, err := ParseClock(s)
		if err != nil {
			return err
		}
		*target(r) = parsed.Format(timeLayout)
		return nil
	}
}

func decodeBool(target func(*LeaveRequest) *bool) func(*LeaveRequest, any) error {
	return func(r *LeaveRequest, raw any) error {
		switch v := raw.(type) {
		case nil:
			*target(r) = false
		case bool:
			*target(r) = v
		case string:
			if strings.TrimSpace(v) == "" {
				*target(r) = false
				return nil
			}
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return errors.New("must be a boolean")
			}
			*target(r) = parsed
		case float64:
			*target(r) = v != 0
		default:
			return errors.New("must be a boolean")
		}
		return nil
	}
}

func asString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", errors.New("must be a string")
	}
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
