package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/app"
	"github.com/MrSnakeDoc/markd/internal/config"
	"github.com/MrSnakeDoc/markd/internal/logger"
)

// NewServeCommand runs the API and feed relay until SIGINT/SIGTERM.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bookmark API and change feed relay",
		Long: `Run the markd server. Configuration comes from MARKD_* environment
variables; MARKD_JWT_SECRET, MARKD_REDIS_ADDR and MARKD_REDIS_DB are required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = loggerClient.Sync() }()

			a, err := app.New(cfg, loggerClient)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
