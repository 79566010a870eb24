package main

import (
	"context"
	"os"
	"os/signal"

	"kitchenctl/internal/checks"
	"kitchenctl/internal/kitchen"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	app := kitchen.NewApp(checks.All())
	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
