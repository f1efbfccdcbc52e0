package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	features "github.com/GoCodeAlone/busfeatures"
)

// featureReport is the output of the features command.
type featureReport struct {
	Order    []string                     `json:"order"`
	Features []features.FeatureDiagnostic `json:"features"`
	Tasks    []features.TaskInfo          `json:"tasks,omitempty"`
}

// NewFeaturesCommand creates the features command
func NewFeaturesCommand(opts *Options) *cobra.Command {
	var setup bool

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Resolve the features and print why each one is active or not",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHost(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var plan *features.ActivationPlan
			report := featureReport{}
			if setup {
				if err := h.setup(cmd.Context()); err != nil {
					return err
				}
				plan = h.activator.Plan()
				report.Tasks = h.activator.Tasks().Tasks()
			} else if plan, err = h.activator.Registry().Resolve(); err != nil {
				return err
			}
			report.Order = plan.Names()
			report.Features = plan.Diagnostics()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&setup, "setup", false, "also run feature setup and list the registered startup tasks")
	return cmd
}
