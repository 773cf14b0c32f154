package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errPINEntryCanceled = errors.New("PIN entry canceled")

func newAuthCommand(gf *globalFlags) *cobra.Command {
	var (
		app            string
		fallback       bool
		maxPINAttempts uint
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Verify the user's fingerprint",
		Args:  cobra.NoArgs,
		Example: `  uvprompt auth --app Vault
  uvprompt auth --app Vault --fallback`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			build := prompt.NewDefault
			if fallback {
				build = prompt.NewFallback
			}
			cfg, err := build(app)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ctl := gf.controller(
				options.WithPINEntry(readPIN(cmd.ErrOrStderr())),
				options.WithMaxPINAttempts(maxPINAttempts),
			)

			fmt.Fprintf(out, "%s\n%s\n%s\n", cfg.Title(), cfg.Subtitle(), cfg.Description())
			if label, ok := cfg.NegativeButton().Get(); ok {
				fmt.Fprintf(out, "(Ctrl+C: %s)\n", label)
			}

			o, err := ctl.Authenticate(ctx, cfg, func() {
				fmt.Fprintln(out, outcome.Describe(outcome.Failed{}))
			})
			if err != nil {
				dismissed, ok := negativeButton(cfg, err)
				if !ok {
					return err
				}
				o = dismissed
			}

			fmt.Fprintln(out, outcome.Describe(o))
			if e, ok := o.(outcome.Error); ok {
				return e
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&app, "app", "", "Application name shown in the prompt title")
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Allow the security key PIN when the fingerprint is blocked")
	cmd.Flags().UintVar(&maxPINAttempts, "max-pin-attempts", 3, "Wrong PINs accepted before giving up, 0 for the key's own limit")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

// negativeButton reports an interrupted challenge as a press of the prompt's
// negative button, which Ctrl+C stands in for.
func negativeButton(cfg prompt.Config, err error) (outcome.Outcome, bool) {
	label, ok := cfg.NegativeButton().Get()
	if !ok || !errors.Is(err, context.Canceled) {
		return nil, false
	}

	return outcome.Error{Code: outcome.CodeNegativeButton, Message: label}, true
}

// readPIN asks for the PIN on the terminal without echo.
func readPIN(w io.Writer) options.PINEntry {
	return func(ctx context.Context, retries uint) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("PIN entry needs a terminal")
		}

		fmt.Fprintf(w, "Fingerprint blocked. Enter the security key PIN (%d attempts left): ", retries)

		type result struct {
			pin string
			err error
		}
		done := make(chan result, 1)
		go func() {
			b, err := term.ReadPassword(fd)
			done <- result{string(b), err}
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return "", ctx.Err()
		case r := <-done:
			fmt.Fprintln(w)
			if r.err != nil {
				return "", r.err
			}
			pin := strings.TrimSpace(r.pin)
			if pin == "" {
				return "", errPINEntryCanceled
			}
			return pin, nil
		}
	}
}
