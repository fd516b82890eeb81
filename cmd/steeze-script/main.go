package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeydtaylor/steeze-script/pkg/core"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func init() {
	core.Register("version", core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
		return core.Response{Code: 200, Body: version}, nil
	}))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
