// Package orchestration runs the tasks of a flow: it times and logs each
// step, collects the status envelopes, fans out loads and reports metrics.
package orchestration

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nucleus/etl-flows/internal/core"
)

// Entry is one recorded task outcome.
type Entry struct {
	Stage    Stage
	Meta     core.Meta
	Duration time.Duration
	// Succeeded mirrors the envelope's OK, not its status code.
	Succeeded bool
}

// OK reports whether the task succeeded.
func (e Entry) OK() bool {
	return e.Succeeded
}

// Issue is a non-fatal problem noticed while a task still succeeded.
type Issue struct {
	Task    string
	Message string
}

// Results is the append-only outcome log of one run. Safe for concurrent use.
type Results struct {
	mu      sync.Mutex
	entries []Entry
	issues  []Issue
}

// NewResults returns an empty log.
func NewResults() *Results {
	return &Results{}
}

// Add records a task outcome.
func (r *Results) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// AddIssue records a warning.
func (r *Results) AddIssue(task, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, Issue{Task: task, Message: fmt.Sprintf(format, args...)})
}

// Snapshot returns a copy of the recorded entries in order.
func (r *Results) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Issues returns a copy of the recorded issues.
func (r *Results) Issues() []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Issue(nil), r.issues...)
}

// Failed counts failed entries.
func (r *Results) Failed() int {
	n := 0
	for _, e := range r.Snapshot() {
		if !e.OK() {
			n++
		}
	}
	return n
}

// Render writes the FINAL RESULTS summary.
func (r *Results) Render(w io.Writer, runID, flow string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("FINAL RESULTS  %s  run %s", flow, runID))
	t.AppendHeader(table.Row{"#", "Stage", "Job", "Status", "Duration", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, WidthMax: 80},
	})
	for i, e := range r.Snapshot() {
		status := text.FgGreen.Sprint(e.Meta.StatusCode)
		if !e.OK() {
			status = text.FgRed.Sprint(e.Meta.StatusCode)
		}
		t.AppendRow(table.Row{i + 1, e.Stage, e.Meta.JobTitle, status, e.Duration.Round(time.Millisecond), e.Meta.Message})
	}
	t.Render()

	issues := r.Issues()
	if len(issues) == 0 {
		return
	}
	it := table.NewWriter()
	it.SetOutputMirror(w)
	it.SetStyle(table.StyleLight)
	it.SetTitle("ISSUES")
	it.AppendHeader(table.Row{"Job", "Issue"})
	for _, is := range issues {
		it.AppendRow(table.Row{is.Task, is.Message})
	}
	it.Render()
}
