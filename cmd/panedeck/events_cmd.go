package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/twistedxcom/panedeck/internal/session"
	"github.com/twistedxcom/panedeck/internal/statedb"
)

// runEvents prints the newest rows of the hook event journal.
func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("events", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.IntP("limit", "n", 20, "rows to show")
	unmatched := fs.Bool("unmatched", false, "only count events no pane owned")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "panedeck events: %v\n", err)
		return 2
	}

	path, err := session.GetJournalPath()
	if err != nil {
		fmt.Fprintf(stderr, "panedeck events: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "no hook events recorded yet")
		return 0
	}

	db, err := statedb.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck events: %v\n", err)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(stderr, "panedeck events: %v\n", err)
		return 1
	}

	if *unmatched {
		n, err := db.CountHookEvents(true)
		if err != nil {
			fmt.Fprintf(stderr, "panedeck events: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%d unmatched events\n", n)
		return 0
	}

	rows, err := db.RecentHookEvents(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck events: %v\n", err)
		return 1
	}
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "no hook events recorded yet")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tEVENT\tTASK\tOUTCOME\tPANE\tLATENCY")
	for _, r := range rows {
		pane := r.PaneID
		if pane == "" {
			pane = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			r.Kind, r.WorktreeID, r.Outcome, pane, latency(r))
	}
	_ = tw.Flush()
	return 0
}

// latency is the delay between the sender's timestamp and receipt. Senders
// that stamp 0 have no meaningful latency.
func latency(r statedb.HookEventRow) string {
	if r.SentAt.UnixMilli() <= 0 {
		return "-"
	}
	d := r.ReceivedAt.Sub(r.SentAt)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond).String()
}
