package backup

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

type ItemStatus string

const (
	StatusCaptured ItemStatus = "Captured"
	StatusApplied  ItemStatus = "Applied"
	StatusSkipped  ItemStatus = "Skipped"
	StatusWarning  ItemStatus = "Warning"
)

type ItemResult struct {
	Name    string
	Status  ItemStatus
	Message string
}

// Report collects per-item outcomes of a backup or restore run. Item
// failures land here as warnings instead of aborting the run, so nothing
// is silently discarded.
type Report struct {
	Items []ItemResult
	// Artifact is the operator-produced backup filename, when an operator
	// job ran and completed.
	Artifact string
}

func (r *Report) add(name string, status ItemStatus, message string) {
	r.Items = append(r.Items, ItemResult{Name: name, Status: status, Message: message})
}

// Warnings returns the items that did not succeed.
func (r *Report) Warnings() []ItemResult {
	warnings := []ItemResult{}
	for _, item := range r.Items {
		if item.Status == StatusWarning {
			warnings = append(warnings, item)
		}
	}
	return warnings
}

// Print renders the report as a table.
func (r *Report) Print(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Item", "Status", "Message"})
	for _, item := range r.Items {
		table.Append([]string{item.Name, string(item.Status), item.Message})
	}
	table.Render()
}
