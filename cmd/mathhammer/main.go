package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pefman/w40k-mathhammer/internal/api"
	"github.com/pefman/w40k-mathhammer/internal/export"
	"github.com/pefman/w40k-mathhammer/internal/logging"
	"github.com/pefman/w40k-mathhammer/internal/scenario"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

func main() {
	var (
		path     = flag.String("scenario", "", "path to a scenario YAML file")
		trials   = flag.Int("trials", 0, "override the scenario's trial count")
		seed     = flag.Uint64("seed", 0, "override the scenario's seed (0 keeps it)")
		compare  = flag.Bool("compare", false, "rank each attacker assignment on its own")
		xlsxDir  = flag.String("xlsx", "", "write an XLSX report into this directory")
		dataAPI  = flag.String("data-api", "http://localhost:8080", "roster data API used for unit_ref and defender_ref")
		logLevel = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: mathhammer -scenario file.yaml [-compare] [-xlsx dir]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log, err := logging.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	sc, err := scenario.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var roster scenario.Roster
	if *dataAPI != "" {
		roster = api.NewClient(*dataAPI, log)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cfg, err := sc.Build(ctx, roster)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *trials > 0 {
		cfg.Trials = *trials
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	if v := sim.Validate(cfg); !v.Valid {
		fmt.Fprintln(os.Stderr, "invalid scenario:")
		for _, e := range v.Errors {
			fmt.Fprintln(os.Stderr, "  -", e)
		}
		os.Exit(1)
	}

	label := sc.Name
	if label == "" {
		label = "scenario"
	}
	opts := []sim.Option{sim.WithLogger(log), sim.WithProgress(progressBar(os.Stderr))}

	if *compare {
		cmp, err := sim.Compare(cfg, opts...)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		printComparison(os.Stdout, cmp)
		if *xlsxDir != "" {
			out, err := export.WriteComparisonFile(*xlsxDir, label, cmp)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println("wrote", out)
		}
		return
	}

	res, err := sim.Run(cfg, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printRun(os.Stdout, label, res)
	if *xlsxDir != "" {
		out, err := export.WriteRunFile(*xlsxDir, label, res)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("wrote", out)
	}
}

func progressBar(w io.Writer) func(sim.Progress) {
	return func(p sim.Progress) {
		fmt.Fprintf(w, "\r%3.0f%% (%d/%d)", p.Fraction()*100, p.Completed, p.Total)
		if p.Completed == p.Total {
			fmt.Fprintln(w)
		}
	}
}

func printRun(out io.Writer, label string, res *sim.Result) {
	s := res.Summary()
	d := res.Defender
	fmt.Fprintf(out, "%s: %d trials vs %s (T%d %d+ W%d x%d), seed %d\n\n",
		label, s.Trials, d.Name, d.Toughness, d.Save, d.Wounds, d.Models, res.Seed)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "mean damage\t%.2f\n", s.Mean)
	fmt.Fprintf(tw, "std dev\t%.2f\n", s.StdDev)
	fmt.Fprintf(tw, "min / median / p90 / max\t%d / %d / %d / %d\n", s.Min, s.Median, s.P90, s.Max)
	fmt.Fprintf(tw, "kill probability\t%.1f%%\n", s.KillProbability*100)
	fmt.Fprintf(tw, "expected survivors\t%d of %d\n", s.ExpectedSurvivors, d.Models)
	fmt.Fprintf(tw, "damage efficiency\t%.1f%%\n", s.DamageEfficiency*100)
	tw.Flush()

	fmt.Fprintln(out, "\nat least")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, t := range s.AtLeast {
		fmt.Fprintf(tw, "%d\t%.1f%%\t\n", t.Damage, t.Probability*100)
	}
	tw.Flush()

	fmt.Fprintln(out, "\nweapons")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "weapon\tattacks\thits\twounds\tunsaved\tmortals\tdamage")
	for _, w := range s.Weapons {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			w.Name, w.MeanAttacks, w.MeanHits, w.MeanWounds, w.MeanFailedSaves, w.MeanMortals, w.MeanDamage)
	}
	tw.Flush()
}

func printComparison(out io.Writer, cmp *sim.Comparison) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "rank\tweapon\tunit\tmean damage\tkill probability")
	for _, e := range cmp.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.1f%%\n", e.Rank, e.WeaponName, e.UnitID, e.MeanDamage, e.Result.KillProbability()*100)
	}
	tw.Flush()
}
