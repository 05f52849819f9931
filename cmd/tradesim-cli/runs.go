package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tradesim/internal/report"
)

func cmdRuns(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum runs to list")
	fs.Parse(args)

	rs, err := a.openRuns()
	if err != nil {
		return err
	}
	defer rs.Close()

	runs, err := rs.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	return report.WriteRuns(os.Stdout, runs)
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	states := fs.Bool("states", false, "also print the per-bar states")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tradesim-cli show [-json] [-states] <run-id>")
	}

	rs, err := a.openRuns()
	if err != nil {
		return err
	}
	defer rs.Close()

	run, err := rs.GetRun(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	r := report.FromRun(run)
	if *asJSON {
		err = report.WriteJSON(os.Stdout, r)
	} else {
		err = report.WriteText(os.Stdout, r)
	}
	if err != nil || !*states {
		return err
	}

	rows, err := rs.ReadStates(ctx, run.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\n%-20s  %12s  %4s  %12s  %14s  %14s\n", "TIME", "PRICE", "SIG", "HOLDINGS", "CASH", "TOTAL")
	for _, st := range rows {
		fmt.Printf("%-20s  %12.4f  %4.0f  %12.4f  %14s  %14s\n",
			st.Timestamp.Format("2006-01-02 15:04:05"),
			st.Price,
			st.Signal,
			st.Holdings,
			report.FormatMoney(st.Cash),
			report.FormatMoney(st.Total),
		)
	}
	return nil
}
