package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"FlowSpectra/internal/extractor"
	"FlowSpectra/internal/logquery"

	"github.com/spf13/cobra"
)

func (a *app) inspectCmd() *cobra.Command {
	var limit int
	var parse bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a few raw flow-log messages to check the log format",
		RunE: func(cmd *cobra.Command, args []string) error {
			lookback, err := a.cfg.LookbackDuration()
			if err != nil {
				return err
			}
			client, err := a.logsClient(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := client.SubmitAndWait(cmd.Context(), a.cfg.Query.LogGroup, extractor.SampleQuery(limit), logquery.LastWindow(time.Now(), lookback))
			if err != nil {
				return err
			}
			printRows(cmd.OutOrStdout(), rows, parse)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of messages to sample")
	cmd.Flags().BoolVar(&parse, "parse", false, "Also split each message into the default flow-log fields")
	return cmd
}

func printRows(w io.Writer, rows []logquery.Row, parse bool) {
	for _, row := range rows {
		fields := make([]string, 0, len(row))
		for f := range row {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(w, "%s: %s\n", f, row[f])
		}
		if parse {
			parsed := extractor.ParseMessage(row["@message"])
			for _, name := range extractor.FieldNames {
				fmt.Fprintf(w, "  %s = %s\n", name, parsed[name])
			}
		}
		fmt.Fprintln(w, "---")
	}
}
