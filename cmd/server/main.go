package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/buildinfo"
	"github.com/dmitrijs2005/cyclesync/internal/server"
	"github.com/dmitrijs2005/cyclesync/internal/server/auth"
	"github.com/dmitrijs2005/cyclesync/internal/server/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cyclesync-server",
		Short:        "Document server for cyclesync clients",
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTokenCommand())

	return cmd
}

// newServeCommand leaves flag parsing to config.LoadConfig so the same
// -a/-d/-s/-c flags work as before.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "serve [-c config.json] [-a addr] [-d dsn] ...",
		Short:              "Run the gRPC document server",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildinfo.PrintBuildData(cmd.OutOrStdout())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			app, err := server.NewApp(ctx, config.LoadConfig())
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token --user <id>",
		Short: "Issue an access token for a user",
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if ttl <= 0 {
				ttl = cfg.AccessTokenValidityDuration
			}
			token, err := auth.GenerateToken(userID, []byte(cfg.SecretKey), ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
