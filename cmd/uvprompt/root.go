package main

import (
	"log/slog"
	"os"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/challenge"
	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/go-ctap/uvprompt/pkg/fidoplatform"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	debug     bool
	namedPipe bool
	paths     []string
	rpID      string
}

func newRootCommand() *cobra.Command {
	gf := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "uvprompt",
		Short: "Fingerprint verification with a FIDO2 security key",
		Long: `uvprompt verifies the user with the fingerprint sensor of a connected
FIDO2 security key and, when allowed, falls back to the key's PIN.`,
		SilenceUsage: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return device.Exit()
		},
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.PersistentFlags().BoolVar(&gf.debug, "debug", false, "Log CTAP traffic")
	cmd.PersistentFlags().BoolVar(&gf.namedPipe, "named-pipe", false, "Reach devices through the HID proxy named pipe (Windows)")
	cmd.PersistentFlags().StringSliceVar(&gf.paths, "path", nil, "HID device path to use instead of enumerating")
	cmd.PersistentFlags().StringVar(&gf.rpID, "rp", options.DefaultRelyingParty, "Relying party the verification is scoped to")

	cmd.AddCommand(newProbeCommand(gf))
	cmd.AddCommand(newAuthCommand(gf))

	return cmd
}

func (gf *globalFlags) options(extra ...options.Option) []options.Option {
	lvl := new(slog.LevelVar)
	if gf.debug {
		lvl.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	opts := []options.Option{
		options.WithLogger(logger),
		options.WithRelyingParty(gf.rpID),
	}
	if gf.namedPipe {
		opts = append(opts, options.WithUseNamedPipes())
	}
	if len(gf.paths) > 0 {
		opts = append(opts, options.WithPaths(gf.paths...))
	}

	return append(opts, extra...)
}

func (gf *globalFlags) controller(extra ...options.Option) *challenge.Controller {
	opts := gf.options(extra...)
	p := fidoplatform.NewHID(opts...)

	return challenge.New(capability.NewProber(p, opts...), p, opts...)
}
