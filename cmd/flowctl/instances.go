package main

import (
	"fmt"

	"FlowSpectra/internal/instances"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/spf13/cobra"
)

func (a *app) instancesCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:       "instances <start|stop>",
		Short:     "Start or stop the instances whose Name tag matches the pattern",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(instances.ActionStart), string(instances.ActionStop)},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := instances.ParseAction(args[0])
			if err != nil {
				return err
			}
			if pattern != "" {
				a.cfg.Instances.NamePattern = pattern
			}
			awsCfg, err := a.awsConfig(cmd.Context())
			if err != nil {
				return err
			}
			toggler := instances.NewToggler(ec2.NewFromConfig(awsCfg), a.cfg.Instances.NamePattern)
			resp, err := toggler.Handle(cmd.Context(), action)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "name-pattern", "", "Name tag pattern (default: instances.name_pattern)")
	return cmd
}
