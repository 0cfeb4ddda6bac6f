package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paymentrecon/internal/bootstrap"
	"github.com/cassiomorais/paymentrecon/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	load := func(ctx context.Context) (cli.PaymentViewer, func(), error) {
		app, err := bootstrap.New(ctx, "paymentctl", "paymentctl", bootstrap.WithLogOutput(os.Stderr))
		if err != nil {
			return nil, nil, err
		}
		svc, err := app.PaymentService(ctx)
		if err != nil {
			app.Close()
			return nil, nil, err
		}
		return svc, app.Close, nil
	}

	if err := cli.Execute(ctx, load, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
