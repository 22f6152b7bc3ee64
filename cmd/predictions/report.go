package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Dosada05/dinor-predictions/services"
)

var closureActionOrder = []string{
	services.ClosureScheduled,
	services.ClosureRescheduled,
	services.ClosureSkippedExisting,
	services.ClosureSkippedClosed,
}

func printScoringReport(w io.Writer, report *services.ScoringReport) error {
	if len(report.Matches) == 0 {
		_, err := fmt.Fprintln(w, "no finished matches with pending predictions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MATCH\tSCORED\tEXACT\tWINNER\tMISSED\tNOTE")
	for _, m := range report.Matches {
		note := ""
		if m.Skipped {
			note = "skipped: " + m.SkipReason
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\n", m.MatchID, m.Scored, m.Exact, m.WinnerOnly, m.Missed, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if report.UsersRecomputed > 0 || report.RankedUsers > 0 {
		_, err := fmt.Fprintf(w, "users recomputed: %d, users ranked: %d\n", report.UsersRecomputed, report.RankedUsers)
		return err
	}
	return nil
}

func printClosureReport(w io.Writer, report *services.ClosureReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MATCH\tKICKOFF\tCLOSES AT\tACTION")
	for _, ev := range report.Events {
		closesAt := "-"
		if ev.ClosesAt != nil {
			closesAt = ev.ClosesAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.MatchID, ev.Kickoff.UTC().Format(time.RFC3339), closesAt, ev.Action)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, action := range closureActionOrder {
		if _, err := fmt.Fprintf(w, "%s: %d\n", action, report.Counts[action]); err != nil {
			return err
		}
	}
	return nil
}
