package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khatabook/creditbook/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.Execute(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	code := cli.ExitCode(ctx, err)
	stop()
	os.Exit(code)
}
