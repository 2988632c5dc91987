package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/config"
	"github.com/zhouzirui/z-haven/backend/internal/logger"
)

var (
	envFile  string
	logLevel string

	cfg *config.Config
	zl  *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Operate the Z Haven triage workflow from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load(envFile)

			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			l, err := logger.New(loaded.Log)
			if err != nil {
				return err
			}
			cfg, zl = loaded, l
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level override (debug, info, warn, error)")

	root.AddCommand(chatCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(clearCmd())
	root.AddCommand(respondersCmd())
	root.AddCommand(escalationsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
