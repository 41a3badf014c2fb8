// Package main provides CMA-ES optimization for finding allocation
// strategies that grow the heaviest plant.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sprout/config"
)

type options struct {
	configPath string
	hours      int
	seeds      int
	maxEvals   int
	population int
	outputDir  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.IntVar(&opts.hours, "hours", 72, "Simulated hours per run")
	flag.IntVar(&opts.seeds, "seeds", 3, "Number of seeds per evaluation")
	flag.IntVar(&opts.maxEvals, "max-evals", 200, "Maximum number of evaluations")
	flag.IntVar(&opts.population, "population", 0, "CMA-ES population size (0 = auto)")
	flag.StringVar(&opts.outputDir, "output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(opts); err != nil {
		slog.Error("optimize failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.outputDir == "" {
		return errors.New("--output is required")
	}
	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := config.Init(opts.configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	params := NewParamVector()
	seeds := make([]int64, opts.seeds)
	for i := range seeds {
		seeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, opts.hours, seeds, config.Cfg())

	popSize := opts.population
	if popSize == 0 {
		popSize = 4 + 3*params.Dim()/2
	}

	prog, err := newProgress(filepath.Join(opts.outputDir, "optimize_log.csv"), params, evaluator, opts.maxEvals)
	if err != nil {
		return err
	}
	defer prog.close()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			prog.record(fitness, params.Clamp(raw))
			return fitness
		},
	}
	// Evaluations run one at a time; each fans its seeds out in parallel.
	settings := &optimize.Settings{FuncEvaluations: opts.maxEvals}
	method := &optimize.CmaEsChol{InitStepSize: 0.3, Population: popSize}

	slog.Info("starting CMA-ES",
		"params", params.Dim(),
		"population", popSize,
		"max_evals", opts.maxEvals,
		"seeds", opts.seeds,
		"hours", opts.hours,
	)

	result, err := optimize.Minimize(problem, params.Normalize(params.DefaultVector()), settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}

	best := prog.best
	if best == nil && result != nil {
		best = params.Clamp(params.Denormalize(result.X))
	}
	if best == nil {
		return errors.New("no evaluation completed")
	}

	slog.Info("optimization complete",
		"evals", prog.evals,
		"elapsed", time.Since(prog.start).Round(time.Second),
		"best_score", -prog.bestFitness,
	)
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.2f\n", spec.Name, best[i])
	}

	if err := writeStrategy(filepath.Join(opts.outputDir, "best_strategy.yaml"), params.Strategy(best)); err != nil {
		return err
	}
	if windows := evaluator.BestWindows(); len(windows) > 0 {
		path := filepath.Join(opts.outputDir, "best_telemetry.csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create best telemetry: %w", err)
		}
		defer f.Close()
		if err := gocsv.MarshalFile(&windows, f); err != nil {
			return fmt.Errorf("write best telemetry: %w", err)
		}
		slog.Info("best run telemetry saved", "path", path)
	}
	return nil
}

func writeStrategy(path string, s Strategy) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write strategy: %w", err)
	}
	slog.Info("best strategy saved", "path", path)
	return nil
}

// progress streams one CSV row per evaluation and tracks the best point.
// Columns depend on the parameter set, so rows are written with encoding/csv.
type progress struct {
	file      *os.File
	w         *csv.Writer
	evaluator *FitnessEvaluator
	maxEvals  int

	start       time.Time
	evals       int
	best        []float64
	bestFitness float64
}

func newProgress(path string, params *ParamVector, evaluator *FitnessEvaluator, maxEvals int) (*progress, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{"eval", "fitness", "quality"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return &progress{file: f, w: w, evaluator: evaluator, maxEvals: maxEvals, start: time.Now()}, nil
}

func (p *progress) record(fitness float64, values []float64) {
	p.evals++
	if p.best == nil || fitness < p.bestFitness {
		p.bestFitness = fitness
		p.best = values
	}

	quality := p.evaluator.LastQuality()
	row := []string{
		strconv.Itoa(p.evals),
		strconv.FormatFloat(fitness, 'f', 6, 64),
		strconv.FormatFloat(quality, 'f', 4, 64),
	}
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := p.w.Write(row); err != nil {
		slog.Error("failed to write log row", "error", err)
	}
	p.w.Flush()

	elapsed := time.Since(p.start)
	remaining := time.Duration(p.maxEvals-p.evals) * (elapsed / time.Duration(p.evals))
	slog.Info("eval",
		"n", p.evals,
		"of", p.maxEvals,
		"biomass_g", -fitness/(1+0.2*quality),
		"quality", quality,
		"best", -p.bestFitness,
		"elapsed", elapsed.Round(time.Second),
		"eta", remaining.Round(time.Second),
	)
}

func (p *progress) close() {
	p.w.Flush()
	if err := p.file.Close(); err != nil {
		slog.Error("failed to close log", "error", err)
	}
}
