package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/advnet/pkg/log"
	"github.com/YuminosukeSato/advnet/training"
)

type plotOptions struct {
	checkpoints string
	config      string
	out         string
	title       string
}

func plotCmd() *cobra.Command {
	var opts plotOptions

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "render the training history of a checkpoint as a PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(afero.NewOsFs(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.checkpoints, "checkpoints", "checkpoints", "checkpoint directory")
	f.StringVar(&opts.config, "config", "", "YAML hyper-parameter file the run used (for validate_after)")
	f.StringVar(&opts.out, "out", "history.png", "output PNG path")
	f.StringVar(&opts.title, "title", "Adversarial training", "plot title")

	return cmd
}

func runPlot(fs afero.Fs, opts plotOptions) error {
	hp := training.DefaultHyperParameters()
	if opts.config != "" {
		var err error
		if hp, err = training.LoadHyperParameters(fs, opts.config); err != nil {
			return err
		}
	}

	cp, err := training.NewCheckpointStore(fs, opts.checkpoints).Load()
	if err != nil {
		return err
	}
	if err := training.PlotHistory(fs, cp.History, opts.title, hp.ValidateAfter, opts.out); err != nil {
		return err
	}
	log.GetLoggerWithName("advnet").Info("history plotted",
		log.PathKey, opts.out,
		log.GlobalStepKey, cp.GlobalStep,
	)
	return nil
}
