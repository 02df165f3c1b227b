package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/penreg/internal/dataset"
	"github.com/cwbudde/penreg/internal/fit"
	"github.com/cwbudde/penreg/internal/model"
	"github.com/cwbudde/penreg/internal/opt"
	"github.com/cwbudde/penreg/internal/penalty"
	"github.com/cwbudde/penreg/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	penaltyKind  string
	unpenalized  []int
	thetas       string
	hessianStep  float64
	maxIters     int
	globalSearch bool
	searchRadius float64
	searchIters  int
	searchPop    int
	searchSeed   int64
	writeTrace   bool
	traceParams  bool
	saveResult   bool
	outPath      string
)

var runCmd = &cobra.Command{
	Use:   "run <X-file> <y-file> <lambda> <optimizer>",
	Short: "Fit a penalized regression model",
	Long: `Fits y ~ X by penalized least squares. An intercept column of ones is
prepended to X and left unpenalized. lambda may be a single value or a
comma-separated sequence, fitted in order with warm starts. The optimizer
is one of: ` + strings.Join(opt.Names(), ", ") + `.

X and y are read from .npy files or from whitespace/comma separated text.`,
	Args: cobra.ExactArgs(4),
	RunE: runFit,
}

func init() {
	runCmd.Flags().StringVar(&penaltyKind, "penalty", string(penalty.Lasso), "Penalty for the slope coefficients: none, lasso, ridge, elasticNet")
	runCmd.Flags().IntSliceVar(&unpenalized, "unpenalized", []int{0}, "Parameter indices left unpenalized (0 is the intercept)")
	runCmd.Flags().StringVar(&thetas, "theta", "", "Comma-separated elastic-net mixing values in [0,1]")
	runCmd.Flags().Float64Var(&hessianStep, "hessian-step", 1e-7, "Finite-difference step of the warm-start Hessian")
	runCmd.Flags().IntVar(&maxIters, "max-iters", 1000, "Max engine iterations per grid point (0 = unlimited)")
	runCmd.Flags().BoolVar(&globalSearch, "global-search", false, "Search for start values with the mayfly optimizer first")
	runCmd.Flags().Float64Var(&searchRadius, "search-radius", 10, "Half-width of the start-value search box")
	runCmd.Flags().IntVar(&searchIters, "search-iters", 200, "Iterations of the start-value search")
	runCmd.Flags().IntVar(&searchPop, "search-pop", 30, "Population size of the start-value search")
	runCmd.Flags().Int64Var(&searchSeed, "search-seed", 42, "Random seed of the start-value search")
	runCmd.Flags().BoolVar(&writeTrace, "trace", false, "Write per-iteration objective values to trace.jsonl")
	runCmd.Flags().BoolVar(&traceParams, "trace-params", false, "Include parameter vectors in the trace")
	runCmd.Flags().BoolVar(&saveResult, "save", true, "Store the result under --data-dir")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the final parameters to this .npy file")

	rootCmd.AddCommand(runCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	xPath, yPath, lambdaArg, engineName := args[0], args[1], args[2], args[3]

	lambdas, err := parseFloats(lambdaArg)
	if err != nil {
		return fmt.Errorf("invalid lambda: %w", err)
	}
	thetaValues, err := parseFloats(thetas)
	if err != nil {
		return fmt.Errorf("invalid theta: %w", err)
	}
	kind, err := penalty.ParseKind(penaltyKind)
	if err != nil {
		return err
	}

	var trace *store.TraceWriter
	engineCfg := opt.DefaultConfig()
	engineCfg.MaxIterations = maxIters
	if writeTrace {
		engineCfg.OnIteration = func(it opt.Iteration) error {
			return trace.Write(traceEntry(it))
		}
	}
	engine, err := opt.New(engineName, engineCfg)
	if err != nil {
		return err
	}

	m, err := loadModel(xPath, yPath)
	if err != nil {
		return err
	}

	spec, err := penalty.ForDesign(m.NumParams(), kind, unpenalized, lambdas, thetaValues)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	slog.Info("Starting run",
		"run_id", runID,
		"optimizer", engineName,
		"samples", m.NumObs(),
		"params", m.NumParams(),
		"penalty", kind,
		"lambdas", lambdas,
	)

	if writeTrace {
		trace, err = store.NewTraceWriter(dataDir, runID, false)
		if err != nil {
			return fmt.Errorf("failed to create trace writer: %w", err)
		}
		defer trace.Close()
	}

	var search opt.Optimizer
	if globalSearch {
		search = opt.NewMayfly(searchIters, searchPop, searchSeed)
	}

	fitCfg := fit.DefaultConfig()
	fitCfg.HessianStep = hessianStep
	fitCfg.GlobalSearch = globalSearch
	fitCfg.SearchRadius = searchRadius

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := fit.Run(ctx, m, engine, search, spec, fitCfg)
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	printResult(cmd.OutOrStdout(), result)

	if outPath != "" {
		if err := dataset.SaveVector(outPath, result.Final().Params); err != nil {
			return err
		}
		slog.Info("Saved parameters", "path", outPath)
	}

	if saveResult {
		record := newRecord(runID, xPath, yPath, engineName, kind, spec, m, result)
		st, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}
		if err := st.SaveRecord(record); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		slog.Info("Saved result", "run_id", runID, "path", st.RunDir(runID))
	}

	return nil
}

// loadModel reads X and y, prepends the intercept column and binds the model.
func loadModel(xPath, yPath string) (*model.LeastSquares, error) {
	x, y, err := dataset.LoadXY(xPath, yPath)
	if err != nil {
		return nil, err
	}

	m, err := model.NewLeastSquares(y, dataset.WithIntercept(x))
	if err != nil {
		return nil, fmt.Errorf("failed to bind model: %w", err)
	}
	return m, nil
}

// parseFloats parses a comma-separated list. An empty string yields nil.
func parseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func traceEntry(it opt.Iteration) store.TraceEntry {
	entry := store.TraceEntry{
		Lambda:       it.Point.Lambda,
		Theta:        it.Point.Theta,
		Iteration:    it.Index,
		Objective:    it.Objective,
		GradientNorm: it.GradientNorm,
		Timestamp:    time.Now(),
	}
	if traceParams {
		entry.Params = it.Params
	}
	return entry
}

func printResult(w io.Writer, result *fit.OptimizationResult) {
	for _, res := range result.Fits {
		fmt.Fprintf(w, "lambda=%g theta=%g loss=%.8g objective=%.8g iterations=%d status=%s\n",
			res.Point.Lambda, res.Point.Theta, res.Loss, res.Objective, res.Iterations, res.Status)
	}
	final := result.Final()
	for i, v := range final.Params {
		fmt.Fprintf(w, "b[%d] = %.10g\n", i, v)
	}
}

func newRecord(runID, xPath, yPath, engineName string, kind penalty.Kind, spec penalty.Spec, m *model.LeastSquares, result *fit.OptimizationResult) *store.Record {
	config := store.RunConfig{
		XPath:        xPath,
		YPath:        yPath,
		Engine:       engineName,
		Penalty:      string(kind),
		Unpenalized:  unpenalized,
		Lambdas:      spec.Lambdas,
		Thetas:       spec.Thetas,
		HessianStep:  hessianStep,
		GlobalSearch: globalSearch,
	}
	return store.NewRecord(runID, config, m.NumObs(), m.NumParams(), result.InitialLoss, result.Summaries(), result.Elapsed)
}
