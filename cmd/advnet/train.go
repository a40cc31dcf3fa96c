package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/dataset"
	"github.com/YuminosukeSato/advnet/nn"
	"github.com/YuminosukeSato/advnet/oracle"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
	"github.com/YuminosukeSato/advnet/training"
)

type trainOptions struct {
	arch          string
	generator     string
	config        string
	data          string
	testData      string
	checkpoints   string
	resume        bool
	metricsAddr   string
	oracleGraph   string
	oracleWeights string
	logEvery      int
	maxDuration   time.Duration
}

func trainCmd() *cobra.Command {
	var opts trainOptions

	cmd := &cobra.Command{
		Use:   "train",
		Short: "run the simulator/generator training loop until total_steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), afero.NewOsFs(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.arch, "arch", nn.ArchSimpleNet, "simulator architecture")
	f.StringVar(&opts.generator, "generator", nn.GenNoiseField, "perturbation generator (NoiseField or UniformNoise)")
	f.StringVar(&opts.config, "config", "", "YAML hyper-parameter file; defaults are used for missing keys")
	f.StringVar(&opts.data, "data", "data", "dataset directory with one sub-directory per object")
	f.StringVar(&opts.testData, "test-data", "", "validation dataset directory (defaults to --data)")
	f.StringVar(&opts.checkpoints, "checkpoints", "checkpoints", "checkpoint directory")
	f.BoolVar(&opts.resume, "resume", false, "continue from the checkpoint in --checkpoints")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&opts.oracleGraph, "oracle-graph", "", "frozen TensorFlow graph used as the oracle (tensorflow builds)")
	f.StringVar(&opts.oracleWeights, "oracle-weights", "", "gob weights snapshot of a classifier used as the oracle")
	f.IntVar(&opts.logEvery, "log-every", 10, "log cycle results every N cycles")
	f.DurationVar(&opts.maxDuration, "max-duration", 0, "stop cleanly after this wall-clock time")

	return cmd
}

func runTrain(ctx context.Context, fs afero.Fs, opts trainOptions) error {
	logger := log.GetLoggerWithName("advnet")

	hp := training.DefaultHyperParameters()
	if opts.config != "" {
		var err error
		if hp, err = training.LoadHyperParameters(fs, opts.config); err != nil {
			return err
		}
	}
	if err := hp.Validate(); err != nil {
		return err
	}

	loader := dataset.NewLoader(fs, hp.TextureSize)
	samples, err := loader.Load(opts.data)
	if err != nil {
		return err
	}
	train, err := dataset.NewProvider(samples, hp.BatchSize, hp.UVMapper(),
		dataset.WithSeed(hp.Seed), dataset.WithLabelSpace(hp.NumClasses))
	if err != nil {
		return err
	}

	ctrlOpts := []training.Option{
		training.WithCheckpointStore(training.NewCheckpointStore(fs, opts.checkpoints)),
		training.WithCallbacks(training.LogProgress(logger, opts.logEvery)),
	}
	if opts.maxDuration > 0 {
		ctrlOpts = append(ctrlOpts, training.WithCallbacks(training.TimeLimit(opts.maxDuration)))
	}
	if opts.testData != "" {
		testSamples, err := loader.Load(opts.testData)
		if err != nil {
			return err
		}
		test, err := dataset.NewProvider(testSamples, hp.BatchSize, hp.UVMapper(),
			dataset.WithSeed(hp.Seed+1), dataset.WithLabelSpace(hp.NumClasses))
		if err != nil {
			return err
		}
		ctrlOpts = append(ctrlOpts, training.WithTestSource(test))
	}

	sim, err := nn.NewClassifier(opts.arch, nn.ClassifierConfig{
		NumClasses: hp.NumClasses, L2: hp.RegularisationWeight, Seed: hp.Seed,
	})
	if err != nil {
		return err
	}
	gen, err := nn.NewGenerator(opts.generator, nn.GeneratorConfig{
		NumClasses: hp.NumClasses, NoiseRange: hp.NoiseRange, L2: hp.RegularisationWeight, Seed: hp.Seed + 1,
	})
	if err != nil {
		return err
	}

	orc, closeOracle, err := openOracle(fs, opts, hp)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeOracle(); err != nil {
			logger.Warn("closing oracle", "error", err)
		}
	}()

	var reg *prometheus.Registry
	if opts.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := training.NewMetrics(reg)
		if err != nil {
			return err
		}
		ctrlOpts = append(ctrlOpts, training.WithMetrics(m))
	}

	ctrl, err := training.NewController(hp, sim, gen, orc, train, ctrlOpts...)
	if err != nil {
		return err
	}
	if opts.resume {
		if err := ctrl.Resume(); err != nil {
			return err
		}
	}

	if reg == nil {
		return ctrl.Run(ctx)
	}

	srv := &http.Server{
		Addr:              opts.metricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving metrics", "addr", opts.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		defer shutdownMetrics(srv, logger)
		return ctrl.Run(gctx)
	})
	return g.Wait()
}

// shutdowner is the part of *http.Server used to stop the metrics endpoint.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownMetrics(srv shutdowner, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("stopping metrics server", "error", err)
	}
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// openOracle returns the configured oracle and a function releasing it.
func openOracle(fs afero.Fs, opts trainOptions, hp training.HyperParameters) (oracle.Oracle, func() error, error) {
	switch {
	case opts.oracleGraph != "":
		o, err := oracle.NewTFOracle(fs, oracle.TFConfig{GraphPath: opts.oracleGraph})
		if err != nil {
			return nil, nil, err
		}
		return o, o.Close, nil
	case opts.oracleWeights != "":
		var w model.NetworkWeights
		if err := model.LoadGob(fs, &w, opts.oracleWeights); err != nil {
			return nil, nil, errors.NewConfigError("oracle-weights", err.Error(), opts.oracleWeights)
		}
		clf, err := nn.NewClassifier(w.Arch, nn.ClassifierConfig{NumClasses: hp.NumClasses, Seed: hp.Seed})
		if err != nil {
			return nil, nil, err
		}
		f, err := oracle.FrozenFromWeights(clf, &w)
		if err != nil {
			return nil, nil, errors.NewConfigError("oracle-weights", err.Error(), opts.oracleWeights)
		}
		return f, func() error { return nil }, nil
	default:
		return nil, nil, errors.NewConfigError("oracle", "one of --oracle-graph or --oracle-weights is required", nil)
	}
}
