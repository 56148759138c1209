// Command gmmfit fits an SGD Gaussian mixture to a CSV or raw binary file
// and prints the fitted parameters as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/YuminosukeSato/gmmsgd/core/data"
	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
	"github.com/YuminosukeSato/gmmsgd/pkg/log"
	"github.com/YuminosukeSato/gmmsgd/preprocessing"
	"github.com/YuminosukeSato/gmmsgd/sklearn/mixture"
)

var (
	dataPath    = flag.String("data", "", "Training data (CSV, or raw row-major binary with -binary)")
	valPath     = flag.String("val", "", "Optional validation data in the same format")
	binary      = flag.Bool("binary", false, "Inputs are raw little-endian binary files")
	dim         = flag.Int("dim", 0, "Number of columns of binary inputs")
	float32In   = flag.Bool("float32", false, "Binary inputs hold float32 instead of float64")
	components  = flag.Int("k", 2, "Number of mixture components")
	configPath  = flag.String("config", "", "Optional JSON hyperparameter file; explicit flags override it")
	epochs      = flag.Int("epochs", 10000, "Maximum epochs per restart")
	lr          = flag.Float64("lr", 1e-3, "Adam learning rate")
	batchSize   = flag.Int("batch", 64, "Minibatch size")
	tol         = flag.Float64("tol", 1e-6, "Convergence tolerance on the epoch loss")
	restarts    = flag.Int("restarts", 5, "Independent restarts")
	patience    = flag.Int("patience", 20, "Epochs without validation improvement before stopping")
	penalty     = flag.Float64("w", mixture.DefaultRegularizationWeight, "Covariance penalty weight")
	seed        = flag.Int64("seed", -1, "Random seed (negative seeds from the clock)")
	jobs        = flag.Int("jobs", 1, "Restarts run concurrently")
	workers     = flag.Int("workers", 1, "Goroutines per batch (0 = NumCPU)")
	standardize = flag.Bool("standardize", false, "Standardize features before fitting; output is in original units")
	plotPath    = flag.String("plot", "", "Write loss curves to this image (.png, .svg, .pdf)")
	outPath     = flag.String("out", "", "Write the JSON result here instead of stdout")
	reportEvery = flag.Int("report", 100, "Log progress every n epochs")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "Usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := log.SetupLogger(*logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := log.GetLoggerWithName("gmmfit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("gmmfit failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger log.Logger) error {
	train, closeTrain, err := openDataset(*dataPath)
	if err != nil {
		return err
	}
	defer closeTrain()

	var val data.Dataset
	if *valPath != "" {
		v, closeVal, err := openDataset(*valPath)
		if err != nil {
			return err
		}
		defer closeVal()
		val = v
	}

	var scaler *preprocessing.StandardScaler
	if *standardize {
		scaler = preprocessing.NewStandardScalerDefault()
		if train, val, err = standardizeDatasets(scaler, train, val); err != nil {
			return err
		}
	}

	cfg, err := buildConfig(*components, train.Dim())
	if err != nil {
		return err
	}
	logger.Info("Dataset loaded",
		log.SamplesKey, train.Len(),
		log.FeaturesKey, train.Dim(),
		log.ComponentsKey, cfg.Components,
	)

	gmm := mixture.NewSGDGMM(cfg.Components, cfg.Dimensions,
		mixture.WithConfig(cfg),
		mixture.WithReporter(mixture.LogReporter(logger)),
	)
	if err := gmm.FitDataset(ctx, train, val); err != nil {
		return err
	}

	if *plotPath != "" {
		if err := gmm.PlotLossCurves(*plotPath); err != nil {
			return err
		}
		logger.Info("Loss curves written", "path", *plotPath)
	}

	res, err := newResult(gmm, scaler)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(res), "encode result")
}

// buildConfig merges defaults, the optional -config file, and every flag
// set on the command line, in that order.
func buildConfig(k, d int) (mixture.Config, error) {
	cfg := mixture.DefaultConfig(k, d)
	cfg.ReportInterval = *reportEvery
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", *configPath)
		}
		cfg.Dimensions = d
		if cfg.Components == 0 {
			cfg.Components = k
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "k":
			cfg.Components = *components
		case "epochs":
			cfg.Epochs = *epochs
		case "lr":
			cfg.LearningRate = *lr
		case "batch":
			cfg.BatchSize = *batchSize
		case "tol":
			cfg.ConvergenceTolerance = *tol
		case "restarts":
			cfg.Restarts = *restarts
		case "patience":
			cfg.EarlyStoppingPatience = *patience
		case "w":
			cfg.RegularizationWeight = *penalty
		case "seed":
			cfg.RandomState = *seed
		case "jobs":
			cfg.NJobs = *jobs
		case "workers":
			cfg.Workers = *workers
		case "report":
			cfg.ReportInterval = *reportEvery
		}
	})
	return cfg, cfg.Validate()
}

func openDataset(path string) (data.Dataset, func(), error) {
	if !*binary {
		X, err := readCSV(path)
		if err != nil {
			return nil, nil, err
		}
		return data.NewMatrixDataset(X), func() {}, nil
	}
	if *dim < 1 {
		return nil, nil, errors.NewValidationError("dim", "required with -binary", *dim)
	}
	dtype := data.Float64
	if *float32In {
		dtype = data.Float32
	}
	ds, err := data.OpenMemoryMappedDataset(path, *dim, dtype)
	if err != nil {
		return nil, nil, err
	}
	return ds, func() { _ = ds.Close() }, nil
}

// standardizeDatasets fits scaler on train and returns in-memory scaled
// copies of both datasets.
func standardizeDatasets(scaler *preprocessing.StandardScaler, train, val data.Dataset) (data.Dataset, data.Dataset, error) {
	X, err := data.Materialize(train)
	if err != nil {
		return nil, nil, err
	}
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		return nil, nil, err
	}
	if val == nil {
		return data.NewMatrixDataset(Xs), nil, nil
	}
	V, err := data.Materialize(val)
	if err != nil {
		return nil, nil, err
	}
	Vs, err := scaler.Transform(V)
	if err != nil {
		return nil, nil, err
	}
	return data.NewMatrixDataset(Xs), data.NewMatrixDataset(Vs), nil
}
