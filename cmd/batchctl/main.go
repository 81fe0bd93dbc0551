// Command batchctl batches the orders of a pick list with one or more
// strategies and prints the aisle visits each needs.
//
//	batchctl [flags] picklist.tsv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	log "github.com/golang/glog"

	"pickbatch/internal/batching"
	"pickbatch/internal/integrations"
	"pickbatch/internal/integrations/picklist"
	"pickbatch/internal/lip"
	"pickbatch/internal/lip/backends"
)

var (
	k          = flag.Int("k", 14, "maximum orders per batch")
	maxOrders  = flag.Int("max-orders", picklist.DefaultMaxOrders, "read the first max-orders+1 orders; 0 reads all")
	strategies = flag.String("strategy", "random,greedy,greedy-exact,greedy-exact-seeded,exact", "comma-separated strategies to run")
	warmStart  = flag.String("warm-start", "", "heuristic whose batching seeds the exact model")
	timeLimit  = flag.Duration("time-limit", 30*time.Second, "engine time limit per model")
	backend    = flag.String("backend", backends.PB, "solver backend ("+strings.Join(backends.Names(), ", ")+")")
	writeLP    = flag.String("write-lp", "", "directory to write every solved model to in LP format")
	seed       = flag.Int64("seed", 0, "seed for the random strategy; 0 picks one")
	symmetry   = flag.Bool("symmetry", true, "break batch symmetry in the exact model")
	asJSON     = flag.Bool("json", false, "print plans as JSON")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] picklist.tsv\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer log.Flush()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, flag.Arg(0), os.Stdout); err != nil {
		log.Exit(err)
	}
}

func run(ctx context.Context, path string, out io.Writer) error {
	sts, err := parseStrategies(*strategies)
	if err != nil {
		return err
	}
	var warm batching.Strategy
	if *warmStart != "" {
		if warm, err = batching.ParseStrategy(*warmStart); err != nil {
			return err
		}
	}
	solver, err := backends.New(*backend)
	if err != nil {
		return err
	}

	orders, err := integrations.FetchAll(ctx, picklist.FileSource{Path: path, MaxOrders: *maxOrders})
	if err != nil {
		return err
	}
	idx, err := batching.NewIncidence(orders)
	if err != nil {
		return err
	}
	opts := []batching.Option{
		batching.WithSolver(solver),
		batching.WithParams(lip.Params{TimeLimit: *timeLimit}),
		batching.WithSymmetryBreaking(*symmetry),
	}
	if *seed != 0 {
		opts = append(opts, batching.WithSeed(*seed))
	}
	if *writeLP != "" {
		if err := os.MkdirAll(*writeLP, 0o755); err != nil {
			return err
		}
		opts = append(opts, batching.WithModelHook(lpWriter(*writeLP)))
	}
	p, err := batching.NewPlanner(idx, *k, opts...)
	if err != nil {
		return err
	}
	log.Infof("%d orders over %d aisles, K=%d, B=%d", idx.Len(), len(idx.Aisles()), p.BatchSize(), p.NumBatches())

	plans, err := p.Compare(ctx, sts, batching.PlanOptions{WarmStart: warm})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plans)
	}
	return printTable(out, p, plans)
}

func parseStrategies(list string) ([]batching.Strategy, error) {
	var out []batching.Strategy
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		st, err := batching.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no strategy given")
	}
	return out, nil
}

// lpWriter saves each model as <dir>/<model>-<n>.lp. Compare calls it from
// several goroutines.
func lpWriter(dir string) func(*lip.Model) {
	var n atomic.Int64
	return func(m *lip.Model) {
		name := filepath.Join(dir, fmt.Sprintf("%s-%03d.lp", m.Name(), n.Add(1)))
		f, err := os.Create(name)
		if err != nil {
			log.Warningf("write-lp: %v", err)
			return
		}
		if err := m.WriteLP(f); err != nil {
			log.Warningf("write-lp %s: %v", name, err)
		}
		if err := f.Close(); err != nil {
			log.Warningf("write-lp %s: %v", name, err)
		}
	}
}

func printTable(out io.Writer, p *batching.Planner, plans []*batching.Plan) error {
	fmt.Fprintf(out, "orders %d, aisles %d, K=%d, B=%d\n\n", p.Incidence().Len(), len(p.Incidence().Aisles()), p.BatchSize(), p.NumBatches())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tTOTAL\tPER BATCH\tSOLVER\tELAPSED")
	for _, plan := range plans {
		name := string(plan.Strategy)
		if plan.WarmStart != "" {
			name += " (warm " + string(plan.WarmStart) + ")"
		}
		solve := "-"
		if plan.Solve != nil {
			solve = fmt.Sprintf("%s, %d models", plan.Solve.Status, plan.Solve.Models)
		}
		per := make([]string, len(plan.Score.PerBatch))
		for i, n := range plan.Score.PerBatch {
			per[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", name, plan.Score.Total, strings.Join(per, " "), solve, plan.Elapsed.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if log.V(1) {
		for _, plan := range plans {
			fmt.Fprintf(out, "\n%s:\n", plan.Strategy)
			for i, b := range plan.Batches {
				fmt.Fprintf(out, "  batch %d: %s  aisles %s\n", i+1, strings.Join(b, " "), strings.Join(p.Incidence().BatchAisles(b).Sorted(), " "))
			}
		}
	}
	return nil
}
