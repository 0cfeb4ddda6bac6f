package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/cassiomorais/paymentrecon/internal/service"
	"github.com/cassiomorais/paymentrecon/pkg/pagination"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// PaymentViewer is the read side of the payment service used by the CLI.
type PaymentViewer interface {
	GetPayment(ctx context.Context, id uuid.UUID, opts service.ViewOptions) (*payment.Payment, error)
	GetPaymentByExternalKey(ctx context.Context, externalKey string, opts service.ViewOptions) (*payment.Payment, error)
	GetAccountPayments(ctx context.Context, accountID uuid.UUID, withPluginInfo bool) ([]*payment.Payment, error)
	GetPayments(ctx context.Context, offset, limit int, pluginName string, withPluginInfo bool) (*pagination.Page[*payment.Payment], error)
	GetPaymentsAcrossPlugins(ctx context.Context, offset, limit int, withPluginInfo bool) (*pagination.Page[*payment.Payment], error)
	SearchPayments(ctx context.Context, searchKey string, offset, limit int, withPluginInfo bool) (*pagination.Page[*payment.Payment], error)
}

// Loader connects to the backing stores and returns a viewer plus a func
// releasing its resources. It runs once per command invocation.
type Loader func(ctx context.Context) (PaymentViewer, func(), error)

// Version is stamped at build time.
var Version = "dev"

type rootOptions struct {
	output string
	load   Loader
	viewer PaymentViewer
	close  func()
}

// Execute runs paymentctl with args, writing results to out.
func Execute(ctx context.Context, load Loader, out io.Writer, args []string) error {
	opts := &rootOptions{load: load}
	defer func() {
		if opts.close != nil {
			opts.close()
		}
	}()

	root := newRootCmd(opts, out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(opts *rootOptions, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:               "paymentctl",
		Short:             "Inspect reconciled payment views",
		Long:              `paymentctl reads payments the way the API serves them: local state merged with what the payment plugins report, corrected in storage when stale.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Version:           Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if _, ok := renderers[opts.output]; !ok {
				return fmt.Errorf("unsupported output %q (use %s)", opts.output, strings.Join(outputFormats(), " or "))
			}
			viewer, closeFn, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			opts.viewer, opts.close = viewer, closeFn
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "Output format: yaml or json")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Display the version of paymentctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "paymentctl version %s\n", Version)
		},
	})
	root.AddCommand(newPaymentCmd(opts))
	root.AddCommand(newAccountCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newSearchCmd(opts))

	return root
}

func (o *rootOptions) render(cmd *cobra.Command, v any) error {
	return renderers[o.output](cmd.OutOrStdout(), v)
}
