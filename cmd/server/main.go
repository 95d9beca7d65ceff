package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JanssenProject/jans-sub021/internal/config"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const configFlag = "config"

var rootCmd = &cobra.Command{
	Use:           "jans-sessiond",
	Short:         "Session and grant lifecycle engine of the Janssen authorization server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringP(configFlag, "c", config.GetEnv("JANS_CONFIG", ""), "Path to the configuration file")
	if err := viper.BindPFlag(configFlag, rootCmd.PersistentFlags().Lookup(configFlag)); err != nil {
		log.Fatal().Err(err).Msg("binding config flag")
	}
	rootCmd.AddCommand(newServeCmd(), newSweepCmd(), newRotateKeysCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration file named by --config and sets up logging.
func loadConfig() (config.Config, error) {
	c, err := config.Load(viper.GetString(configFlag))
	if err != nil {
		return nil, err
	}
	logging.Setup(c.GetLogLevel(), c.GetLogPretty())
	return c, nil
}

// withServer builds the application context for the duration of fn.
func withServer(ctx context.Context, fn func(*server.Server) error) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	srv, err := server.New(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Err(err).Msg("closing backends")
		}
	}()
	return fn(srv)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background reconciler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				err := run(ctx)
				if err == nil || ctx.Err() != nil {
					break
				}
				log.Err(err).Msg("error running server, restarting")
				time.Sleep(1 * time.Second)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
}

func run(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	return withServer(ctx, func(srv *server.Server) error {
		displayAppname(srv.Config().GetAppName())
		password, err := srv.Bootstrap(ctx)
		if err != nil {
			return err
		}
		if password != "" {
			log.Warn().Str("password", password).Msg("administrator created with a generated password, it will not be displayed again")
		}
		return srv.Run(ctx)
	})
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup pass over sessions and tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd.Context(), func(srv *server.Server) error {
				return srv.Sweep(cmd.Context())
			})
		},
	}
}

func newRotateKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-keys",
		Short: "Rotate the signing key and print the published key set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd.Context(), func(srv *server.Server) error {
				jwks, err := srv.RotateKeys(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(jwks)
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
