package main

import (
	"fmt"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/fidoplatform"
	"github.com/spf13/cobra"
)

func newProbeCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report whether fingerprint verification is usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := gf.options()
			p := fidoplatform.NewHID(opts...)
			status := capability.NewProber(p, opts...).Probe(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status, status.Description())
			if status != capability.Usable {
				return fmt.Errorf("biometric authentication is %s", status)
			}
			return nil
		},
	}
}
