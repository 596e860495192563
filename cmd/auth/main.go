// Command auth serves password login, TOTP enrollment and step-up tokens.
package main

import (
	"log/slog"
	"os"

	"github.com/aussiebroadwan/stepup/internal/auth/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
