package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"tigdiff/internal/report"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func statusColor(s report.Status) func(a ...interface{}) string {
	switch s {
	case report.Added:
		return green
	case report.Deleted:
		return red
	case report.Modified:
		return yellow
	case report.Renamed:
		return blue
	default:
		return cyan
	}
}

// formatEntry renders e like git's --name-status
func formatEntry(e report.Entry) string {
	letter := statusColor(e.Status)(e.Status.Letter())
	switch e.Status {
	case report.Renamed, report.Copied:
		score := fmt.Sprintf("%03d", int(e.Similarity*100+0.5))
		return fmt.Sprintf("%s%s\t%s\t%s", letter, statusColor(e.Status)(score), e.SourcePath, e.Path)
	default:
		return fmt.Sprintf("%s\t%s", letter, e.Path)
	}
}

func printReport(w io.Writer, r *report.Report) {
	if len(r.Entries) == 0 {
		fmt.Fprintln(w, "No changes between the two trees")
	}
	for _, e := range r.Entries {
		fmt.Fprintln(w, formatEntry(e))
	}

	s := r.Summary()
	fmt.Fprintf(w, "\n%d added, %d deleted, %d modified, %d renamed, %d copied (%d similarity checks)\n",
		s.Added, s.Deleted, s.Modified, s.Renamed, s.Copied, r.Outcome.SimilarityChecks)

	if r.Outcome.LimitReached() {
		fmt.Fprintln(w, yellow(fmt.Sprintf(
			"warning: inexact detection was skipped for %d rename and %d copy pairs, raise the limit with -l",
			r.Outcome.RenameChecksSkipped, r.Outcome.CopyChecksSkipped)))
	}
}

func printReportList(w io.Writer, reports []*report.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No stored reports")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOLD\tNEW\tENTRIES\tCREATED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, shortRev(r.OldRevision, r.OldTree), shortRev(r.NewRevision, r.NewTree),
			len(r.Entries), humanize.Time(r.CreatedAt))
	}
	tw.Flush()
}

func shortRev(rev, tree string) string {
	if rev != "" {
		return rev
	}
	if len(tree) > 7 {
		return tree[:7]
	}
	return tree
}
