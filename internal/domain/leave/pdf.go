package leave

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WritePDF renders a one-page summary of req to w.
func WritePDF(w io.Writer, req LeaveRequest) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Leave request")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(value), "", "L", false)
	}

	line("Request", req.ID)
	line("Employee", req.UserName)
	line("Type", string(req.Type))
	line("Status", string(req.Status))
	line("Requested on", dateString(req.RequestDate, req.CreatedAt))
	line("From", dateString(req.StartDate))
	line("To", dateString(req.EndDate))
	line("Back at work", dateString(req.ReturnDate))
	if req.IsPartialDay {
		line("Hours", fmt.Sprintf("%s - %s (%.2f h)", req.StartTime, req.EndTime, req.HoursRequested))
	} else {
		line("Days", fmt.Sprintf("%d", req.DaysRequested))
	}
	line("Justification", req.Justification)
	line("Handover tasks", req.HandoverTasks)
	line("Responsible", req.ResponsiblePerson)
	if req.MitigationPlan != "" {
		line("Mitigation plan", req.MitigationPlan)
	}
	pdf.Ln(4)
	line("Approvals", approvalSummary(req.ApprovalFlow))
	if req.Comments != "" {
		line("Comments", strings.ReplaceAll(req.Comments, commentSeparator, "\n"))
	}

	return pdf.Output(w)
}

func dateString(candidates ...time.Time) string {
	for _, t := range candidates {
		if !t.IsZero() {
			return t.Format(dateLayout)
		}
	}
	return "-"
}

func approvalSummary(flow ApprovalFlow) string {
	mark := func(ok bool) string {
		if ok {
			return "yes"
		}
		return "no"
	}
	return fmt.Sprintf("PM: %s, Leader: %s, HR: %s", mark(flow.PM), mark(flow.Leader), mark(flow.HR))
}
