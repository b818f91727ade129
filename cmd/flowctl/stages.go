package main

import (
	"context"
	"fmt"

	"FlowSpectra/internal/geo"
	"FlowSpectra/internal/logquery"
	"FlowSpectra/internal/pipeline"
	"FlowSpectra/internal/prefix"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/spf13/cobra"
)

func (a *app) prefixesCmd() *cobra.Command {
	var region, exclude string
	cmd := &cobra.Command{
		Use:   "prefixes",
		Short: "Download the AWS IP ranges and write the filtered prefix table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if region != "" {
				a.cfg.Prefixes.Region = region
			}
			if cmd.Flags().Changed("exclude-service") {
				a.cfg.Prefixes.ExcludeService = exclude
			}
			return a.runStage(cmd.Context(), pipeline.StagePrefixes, false)
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "Region to keep (default: prefixes.region)")
	cmd.Flags().StringVar(&exclude, "exclude-service", "", "Service name to drop (default: prefixes.exclude_service)")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var interfaceID, logGroup string
	var limit int
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Query the flow logs of an interface and write the traffic table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyQueryFlags(interfaceID, logGroup, limit)
			return a.runStage(cmd.Context(), pipeline.StageExtract, true)
		},
	}
	a.queryFlags(cmd, &interfaceID, &logGroup, &limit)
	return cmd
}

func (a *app) tagCmd() *cobra.Command {
	var cidr string
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Label both endpoints of every flow and write the tagged table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cidr != "" {
				a.cfg.Classifier.InternalCIDR = cidr
			}
			return a.runStage(cmd.Context(), pipeline.StageTag, false)
		},
	}
	cmd.Flags().StringVar(&cidr, "internal-cidr", "", "Internal network (default: classifier.internal_cidr)")
	return cmd
}

func (a *app) graphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the tagged table as a traffic graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "" {
				a.cfg.Output.GraphFormat = format
			}
			return a.runStage(cmd.Context(), pipeline.StageGraph, false)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Graphviz output format, or dot for the source (default: output.graph_format)")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var interfaceID, logGroup string
	var limit int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run prefixes, extract, tag and graph in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyQueryFlags(interfaceID, logGroup, limit)
			return a.runStage(cmd.Context(), pipeline.StageRun, true)
		},
	}
	a.queryFlags(cmd, &interfaceID, &logGroup, &limit)
	return cmd
}

func (a *app) queryFlags(cmd *cobra.Command, interfaceID, logGroup *string, limit *int) {
	cmd.Flags().StringVarP(interfaceID, "interface", "i", "", "Network interface id; must match eni-<lowercase hex>, other formats are rejected (default: query.interface_id)")
	cmd.Flags().StringVarP(logGroup, "log-group", "g", "", "Flow-log group (default: query.log_group)")
	cmd.Flags().IntVarP(limit, "limit", "n", 0, "Maximum number of flows (default: query.limit)")
}

func (a *app) applyQueryFlags(interfaceID, logGroup string, limit int) {
	if interfaceID != "" {
		a.cfg.Query.InterfaceID = interfaceID
	}
	if logGroup != "" {
		a.cfg.Query.LogGroup = logGroup
	}
	if limit > 0 {
		a.cfg.Query.Limit = limit
	}
}

// runStage builds a pipeline runner for stage. AWS clients are only created
// when the stage talks to CloudWatch Logs.
func (a *app) runStage(ctx context.Context, stage string, needsLogs bool) error {
	opts := []pipeline.Option{
		pipeline.WithPrefixSource(prefix.NewBuilder(a.cfg.Prefixes.URL, nil)),
	}

	if needsLogs {
		client, err := a.logsClient(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithQueryRunner(client))
	}

	var locator *geo.Locator
	if a.cfg.Geo.DatabasePath != "" {
		open := a.openLocator
		if open == nil {
			open = geo.Open
		}
		var err error
		locator, err = open(a.cfg.Geo.DatabasePath)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithLocator(locator))
	}

	runner, err := pipeline.NewRunner(a.cfg, opts...)
	if err != nil {
		locator.Close()
		return err
	}
	defer runner.Close()

	if err := runner.RunStage(ctx, stage); err != nil {
		return fmt.Errorf("stage %s failed: %w", stage, err)
	}
	return nil
}

func (a *app) logsClient(ctx context.Context) (*logquery.Client, error) {
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	poll, err := a.cfg.PollIntervalDuration()
	if err != nil {
		return nil, err
	}
	return logquery.NewClient(
		cloudwatchlogs.NewFromConfig(awsCfg),
		logquery.WithPollInterval(poll),
		logquery.WithMaxAttempts(a.cfg.Query.MaxAttempts),
	), nil
}
