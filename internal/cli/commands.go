package cli

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/paymentrecon/internal/controller"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultLimit = 100

type viewFlags struct {
	pluginInfo bool
	attempts   bool
	properties []string
}

func (f *viewFlags) register(cmd *cobra.Command, withAttempts bool) {
	cmd.Flags().BoolVarP(&f.pluginInfo, "plugin-info", "p", false, "Merge what the payment plugin reports")
	if withAttempts {
		cmd.Flags().BoolVarP(&f.attempts, "attempts", "a", false, "Include past and scheduled attempts")
	}
	cmd.Flags().StringArrayVar(&f.properties, "property", nil, "Plugin property as key=value (repeatable)")
}

func (f *viewFlags) options() (service.ViewOptions, error) {
	opts := service.ViewOptions{WithPluginInfo: f.pluginInfo, WithAttempts: f.attempts}
	for _, kv := range f.properties {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return opts, fmt.Errorf("invalid property %q, want key=value", kv)
		}
		opts.Properties = append(opts.Properties, payment.PluginProperty{Key: key, Value: value})
	}
	return opts, nil
}

type pageFlags struct {
	offset     int
	limit      int
	pluginInfo bool
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Offset of the first payment")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "Maximum number of payments")
	cmd.Flags().BoolVarP(&f.pluginInfo, "plugin-info", "p", false, "Merge what the payment plugins report")
}

func (f *pageFlags) validate() error {
	if f.offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	if f.limit < 1 {
		return fmt.Errorf("limit must be positive")
	}
	return nil
}

func newPaymentCmd(opts *rootOptions) *cobra.Command {
	var flags viewFlags
	var byKey bool

	cmd := &cobra.Command{
		Use:   "payment <payment-id | external-key>",
		Short: "Show one payment with its transactions",
		Long: `Show one payment with its transactions ordered by effective date.

With --plugin-info each transaction carries the plugin's view and stale
local statuses are corrected. With --attempts past and scheduled attempts
are listed too. Pass --external-key to look the payment up by external key;
attempts are not loaded on that path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewOpts, err := flags.options()
			if err != nil {
				return err
			}

			var p *payment.Payment
			if byKey {
				p, err = opts.viewer.GetPaymentByExternalKey(cmd.Context(), args[0], viewOpts)
			} else {
				id, parseErr := uuid.Parse(args[0])
				if parseErr != nil {
					return fmt.Errorf("invalid payment id %q: %w", args[0], parseErr)
				}
				p, err = opts.viewer.GetPayment(cmd.Context(), id, viewOpts)
			}
			if err != nil {
				return err
			}
			return opts.render(cmd, controller.FromPayment(p))
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVarP(&byKey, "external-key", "k", false, "Treat the argument as the payment external key")
	return cmd
}

func newAccountCmd(opts *rootOptions) *cobra.Command {
	var pluginInfo bool

	cmd := &cobra.Command{
		Use:   "account <account-id>",
		Short: "Show every payment of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}

			payments, err := opts.viewer.GetAccountPayments(cmd.Context(), accountID, pluginInfo)
			if err != nil {
				return err
			}
			resp := make([]*controller.PaymentResponse, 0, len(payments))
			for _, p := range payments {
				resp = append(resp, controller.FromPayment(p))
			}
			return opts.render(cmd, resp)
		},
	}
	cmd.Flags().BoolVarP(&pluginInfo, "plugin-info", "p", false, "Merge what the payment plugins report")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var flags pageFlags
	var pluginName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through stored payments, of one plugin or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			if pluginName == "" {
				page, err := opts.viewer.GetPaymentsAcrossPlugins(cmd.Context(), flags.offset, flags.limit, flags.pluginInfo)
				if err != nil {
					return err
				}
				return opts.render(cmd, controller.FromPage(page))
			}

			page, err := opts.viewer.GetPayments(cmd.Context(), flags.offset, flags.limit, pluginName, flags.pluginInfo)
			if err != nil {
				return err
			}
			return opts.render(cmd, controller.FromPage(page))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&pluginName, "plugin", "", "Only payments served by this plugin")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var flags pageFlags

	cmd := &cobra.Command{
		Use:   "search <key>",
		Short: "Search payments by id, external key or payment number",
		Long: `Search payments. Without --plugin-info storage is searched; with it every
plugin's own search is used and failing plugins are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			page, err := opts.viewer.SearchPayments(cmd.Context(), args[0], flags.offset, flags.limit, flags.pluginInfo)
			if err != nil {
				return err
			}
			return opts.render(cmd, controller.FromPage(page))
		},
	}
	flags.register(cmd)
	return cmd
}
