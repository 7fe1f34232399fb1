package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/recipenow/recipenow-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		a.Log.Info("shutdown signal received")
		a.Close()
		os.Exit(0)
	}()

	if err := a.Run(""); err != nil {
		a.Log.Error("http server exited", "error", err)
		os.Exit(1)
	}
}
