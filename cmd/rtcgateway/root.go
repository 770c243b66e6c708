// Root command for the rtcgateway CLI. It wires global flags, logger and
// config initialisation, and the subcommands in sibling files.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/rtcconfig"
	"github.com/nodeglow/rtcgateway/pkg/version"
)

var (
	cfgFile string
	logJSON bool

	setModeFlag string
	getModeFlag bool

	p2pSetupFlag   bool
	p2pReauthFlag  bool
	p2pRunFlag     bool
	p2pAPIKeyFlag  string

	rootCmd = &cobra.Command{
		Use:   "rtcgateway",
		Short: "gRPC-over-WebRTC gateway for the ETC scraper service",
		Long:    `rtcgateway bridges browser WebRTC data channels (or a fallback gRPC/HTTP2 listener) to the ETCScraper RPC service.`,
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
		RunE: runDefault,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")

	rootCmd.Flags().StringVar(&setModeFlag, "set-mode", "", "Persist mode (p2p|grpc); the service is not restarted and picks it up on its next start")
	rootCmd.Flags().BoolVar(&getModeFlag, "get-mode", false, "Print current mode and signaling URL")
	rootCmd.Flags().BoolVar(&p2pSetupFlag, "p2p-setup", false, "Run OAuth device flow, save credentials")
	rootCmd.Flags().BoolVar(&p2pReauthFlag, "p2p-reauth", false, "Force new OAuth, overwriting credentials")
	rootCmd.Flags().BoolVar(&p2pRunFlag, "p2p-run", false, "Start P2P client interactively")
	rootCmd.Flags().StringVar(&p2pAPIKeyFlag, "p2p-apikey", "", "Save an API key directly")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newUninstallCmd())
}

// Execute is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// runDefault dispatches the flag-style CLI surface (--set-mode, --get-mode,
// --p2p-*) before falling back to starting the gateway in its configured
// mode with no flags given.
func runDefault(cmd *cobra.Command, args []string) error {
	switch {
	case setModeFlag != "":
		return runSetMode(setModeFlag)
	case getModeFlag:
		return runGetMode()
	case p2pSetupFlag:
		return runP2PSetup(cmd.Context(), false)
	case p2pReauthFlag:
		return runP2PSetup(cmd.Context(), true)
	case p2pAPIKeyFlag != "":
		return runP2PSaveAPIKey(p2pAPIKeyFlag)
	case p2pRunFlag:
		cfg, err := rtcconfig.Load(cfgFile)
		if err != nil {
			return err
		}
		return runP2P(withShutdownSignal(cmd.Context()), cfg)
	default:
		return runConfiguredMode(cmd.Context())
	}
}

func runConfiguredMode(parent context.Context) error {
	cfg, err := rtcconfig.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Mode == rtcconfig.ModeGRPC {
		cfg.Mode = rtcconfig.StoredMode()
	}

	ctx := withShutdownSignal(parent)
	switch cfg.Mode {
	case rtcconfig.ModeP2P:
		return runP2P(ctx, cfg)
	default:
		return runGRPC(ctx, cfg)
	}
}

func runSetMode(raw string) error {
	mode := rtcconfig.Mode(raw)
	if mode != rtcconfig.ModeGRPC && mode != rtcconfig.ModeP2P {
		return fmt.Errorf("unknown mode %q (want grpc or p2p)", raw)
	}
	if err := rtcconfig.SetStoredMode(mode); err != nil {
		return err
	}
	fmt.Printf("mode set to %s; restart the service to apply\n", mode)
	return nil
}

func runGetMode() error {
	cfg, err := rtcconfig.Load(cfgFile)
	if err != nil {
		return err
	}
	fmt.Printf("mode: %s\nsignaling url: %s\n", rtcconfig.StoredMode(), cfg.P2PSignalingURL)
	return nil
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	return nil
}

func fatal(err error) {
	logging.Logger().Sugar().Error(err)
	os.Exit(1)
}
