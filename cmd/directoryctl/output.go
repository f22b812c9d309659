package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/postgres"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printMigrations(w io.Writer, migrations []postgres.Migration) {
	tw := newTable(w)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
	for _, m := range migrations {
		applied := "-"
		if m.IsApplied {
			applied = m.AppliedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	_ = tw.Flush()
}

func printChanges(w io.Writer, changes []postgres.ChangeRecord) {
	tw := newTable(w)
	fmt.Fprintln(tw, "WHEN\tFIELD\tOLD\tNEW\tSOURCE")
	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.ChangedAt.Local().Format(time.DateTime), c.Field, quoteEmpty(c.Old), quoteEmpty(c.New), c.Source)
	}
	_ = tw.Flush()
}

func printSearchResult(w io.Writer, r *query.SearchStudentsResult) {
	switch r.Outcome {
	case query.OutcomeUnique:
		printCard(w, r.Card)
	case query.OutcomeAmbiguous:
		fmt.Fprintf(w, "%d candidates\n", r.Total)
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tNAME\tYEAR")
		for _, c := range r.Candidates {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", c.StudentID, c.FullName, c.AdmissionYear)
		}
		_ = tw.Flush()
		if r.Total > len(r.Candidates) {
			fmt.Fprintf(w, "... and %d more\n", r.Total-len(r.Candidates))
		}
	default:
		fmt.Fprintln(w, "no match")
	}
}

func printCard(w io.Writer, c *query.StudentCardDTO) {
	if c == nil {
		return
	}
	tw := newTable(w)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", c.StudentID)
	row("Name", c.FullName)
	row("Emails", strings.Join(c.Emails, ", "))
	row("Telegram", c.TelegramHandle)
	row("Aliases", strings.Join(c.Aliases, ", "))
	row("Admitted", fmt.Sprint(c.AdmissionYear))
	if c.Scholarship {
		row("Scholarship", "yes")
	}
	row("Country", c.Country)
	row("Comment", c.PublicComment)
	row("Secret", c.SecretComment)
	for _, course := range c.Courses {
		row(course.Name, fmt.Sprint(course.Grade))
	}
	for _, o := range c.Others {
		row(o.Label, o.Value)
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, r *resolution.Report) {
	mode := "import"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "%s %s: %d rows in %s\n", mode, r.RunID, r.Rows, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "created %d, updated %d, unchanged %d, skipped %d\n",
		r.Created, r.Updated, r.Unchanged, r.Skipped)

	if len(r.Unmapped) > 0 {
		fmt.Fprintf(w, "unmapped columns: %s\n", strings.Join(r.Unmapped, ", "))
	}
	for _, a := range r.Ambiguous {
		ids := make([]string, len(a.Candidates))
		for i, id := range a.Candidates {
			ids[i] = id.String()
		}
		fmt.Fprintf(w, "row %d ambiguous (%s by %s): %s\n", a.Row, a.Name, a.Key, strings.Join(ids, ", "))
	}
	for _, d := range r.Duplicates {
		rows := make([]string, len(d.Rows))
		for i, n := range d.Rows {
			rows[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(w, "rows %s matched %s (%s)\n", strings.Join(rows, ", "), d.Name, d.StudentID)
		for _, o := range d.Trace {
			fmt.Fprintf(w, "  row %d %s: %s -> %s\n", o.Row, o.Field, quoteEmpty(o.Old), quoteEmpty(o.New))
		}
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "row %d failed (%s): %s\n", f.Row, f.Name, f.Reason)
	}
	for _, i := range r.Issues {
		fmt.Fprintf(w, "row %d %s = %q: %s\n", i.Row, i.Label, i.Value, i.Reason)
	}
}

func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
