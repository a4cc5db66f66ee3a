package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	executionContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	executeErr := NewApplication().Command().ExecuteContext(executionContext)
	stop()
	cobra.CheckErr(executeErr)
}
