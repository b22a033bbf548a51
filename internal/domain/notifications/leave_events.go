package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaveflow/internal/domain/leave"
)

// LeaveEvents turns leave workflow events into notifications.
type LeaveEvents struct {
	Service *Service
}

func NewLeaveEvents(service *Service) *LeaveEvents {
	return &LeaveEvents{Service: service}
}

func (e *LeaveEvents) RequestSubmitted(ctx context.Context, req leave.LeaveRequest, recipients []string) error {
	title := fmt.Sprintf("New %s request", req.Type)
	body := fmt.Sprintf("%s submitted a %s request from %s to %s. It is waiting for your review (%s).",
		ownerName(req), req.Type, day(req.StartDate), day(req.EndDate), req.Status)
	ownerErr := e.Service.Create(ctx, req.UserID, TypeLeaveSubmitted, "Leave request submitted",
		fmt.Sprintf("Your %s request from %s to %s was submitted and is %s.", req.Type, day(req.StartDate), day(req.EndDate), req.Status))
	if ownerErr != nil {
		ownerErr = fmt.Errorf("notify owner %s: %w", req.UserID, ownerErr)
	}
	return errors.Join(ownerErr, e.fanOut(ctx, recipients, req.UserID, title, body))
}

func (e *LeaveEvents) RequestAdvanced(ctx context.Context, req leave.LeaveRequest, recipients []string) error {
	title := fmt.Sprintf("%s request awaiting approval", req.Type)
	body := fmt.Sprintf("The %s request of %s (%s to %s) moved to %s.",
		req.Type, ownerName(req), day(req.StartDate), day(req.EndDate), req.Status)
	return e.fanOut(ctx, recipients, req.UserID, title, body)
}

func (e *LeaveEvents) RequestDecided(ctx context.Context, req leave.LeaveRequest) error {
	ntype, verb := TypeLeaveApproved, "approved"
	if req.Status == leave.StatusRejected {
		ntype, verb = TypeLeaveRejected, "rejected"
	}
	body := fmt.Sprintf("Your %s request from %s to %s was %s.", req.Type, day(req.StartDate), day(req.EndDate), verb)
	if req.Comments != "" {
		body += " Comments: " + req.Comments
	}
	return e.Service.Create(ctx, req.UserID, ntype, "Leave request "+verb, body)
}

func (e *LeaveEvents) fanOut(ctx context.Context, recipients []string, skip, title, body string) error {
	var errs []error
	for _, userID := range recipients {
		if userID == "" || userID == skip {
			continue
		}
		if err := e.Service.Create(ctx, userID, TypeLeavePendingApproval, title, body); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func ownerName(req leave.LeaveRequest) string {
	if req.UserName != "" {
		return req.UserName
	}
	return "A colleague"
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
