package main

import (
	"context"
	"fmt"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/geo"
	"FlowSpectra/internal/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config

	openLocator func(path string) (*geo.Locator, error)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Analyze VPC flow logs of a network interface",
		Long: `flowctl pulls the heaviest flows of an interface out of CloudWatch Logs,
tags every endpoint as internal, an AWS service, or internet, and renders
the result as a traffic graph.

Each stage reads and writes the tables under output.dir, so stages can be
re-run on their own.`,
		Version:           "0.1.0",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/config.yaml", "Path to the config file (defaults are used when it does not exist)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("flowctl version %s\n", rootCmd.Version))

	rootCmd.AddCommand(
		a.prefixesCmd(),
		a.extractCmd(),
		a.tagCmd(),
		a.graphCmd(),
		a.runCmd(),
		a.inspectCmd(),
		a.instancesCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, a.verbose)
	log.Debug("Configuration loaded", "path", a.configPath, "region", cfg.AWS.Region)
	a.cfg = cfg
	return nil
}

func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return awsCfg, nil
}
