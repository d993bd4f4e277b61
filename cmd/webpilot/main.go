package main

import (
	"fmt"
	"os"

	"github.com/rahul/webpilot/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, err)
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}
