// Package rtcconfig resolves process-wide gateway settings from
// environment variables, an optional config file, and defaults, in that
// precedence order, and selects between gRPC and P2P service modes. No
// setting is read from a command-line flag.
package rtcconfig

import (
	"time"

	"github.com/spf13/viper"
)

// Mode is the top-level runtime the gateway starts.
type Mode string

const (
	ModeGRPC Mode = "grpc"
	ModeP2P  Mode = "p2p"
)

// Config holds every setting the CLI, the fallback gRPC server, and the
// P2P orchestrator need at startup.
type Config struct {
	Mode Mode `mapstructure:"mode"`

	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	P2PAuthURL      string `mapstructure:"p2p_auth_url"`
	P2PSignalingURL string `mapstructure:"p2p_signaling_url"`
	CredentialsPath string `mapstructure:"credentials_path"`

	DownloadPath      string        `mapstructure:"download_path"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	AccountDelay      time.Duration `mapstructure:"account_delay"`
	DefaultHeadless   bool          `mapstructure:"default_headless"`

	// JWTSecret, when non-empty, enables bearer-JWT auth on the fallback
	// gRPC server in place of the plain shared-secret AuthToken check.
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
	AuthToken string `mapstructure:"auth_token"`
}

// DefaultConfig returns the gateway's built-in defaults.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeGRPC,
		GRPCAddr:          ":4317",
		MetricsAddr:       ":9090",
		P2PAuthURL:        "",
		P2PSignalingURL:   "",
		CredentialsPath:   "",
		DownloadPath:      "./downloads",
		MaxConcurrentJobs: 1,
		JobTimeout:        30 * time.Minute,
		AccountDelay:      0,
		DefaultHeadless:   true,
	}
}

// envPrefix is the variable namespace viper uses for automatic env lookups
// that don't have an explicit BindEnv below (e.g. RTCGW_MODE).
const envPrefix = "RTCGW"

// Load merges, in precedence order, environment variables → an optional
// config file → DefaultConfig. filePath may be empty. Command-line flags
// are not consulted.
func Load(filePath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// Spec-mandated bare environment variable names (no RTCGW_ prefix),
	// bound explicitly since they don't follow the generic prefix scheme.
	_ = v.BindEnv("grpc_addr", "GATEWAY_GRPC_ADDR")
	_ = v.BindEnv("p2p_auth_url", "P2P_AUTH_URL")
	_ = v.BindEnv("p2p_signaling_url", "P2P_SIGNALING_URL")
	_ = v.BindEnv("download_path", "DOWNLOAD_PATH")
	_ = v.BindEnv("max_concurrent_jobs", "MAX_CONCURRENT_JOBS")
	_ = v.BindEnv("job_timeout", "JOB_TIMEOUT_SECS")
	_ = v.BindEnv("account_delay", "ACCOUNT_DELAY_SECS")
	_ = v.BindEnv("default_headless", "DEFAULT_HEADLESS")
	_ = v.BindEnv("metrics_addr", "RTCGW_METRICS_ADDR")
	_ = v.BindEnv("jwt_secret", "RTCGW_JWT_SECRET")
	_ = v.BindEnv("jwt_issuer", "RTCGW_JWT_ISSUER")
	_ = v.BindEnv("auth_token", "RTCGW_AUTH_TOKEN")

	if filePath != "" {
		v.SetConfigFile(filePath)
		_ = v.ReadInConfig() // missing file is non-fatal; defaults/env still apply
	}

	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("grpc_addr", cfg.GRPCAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("download_path", cfg.DownloadPath)
	v.SetDefault("max_concurrent_jobs", cfg.MaxConcurrentJobs)
	v.SetDefault("default_headless", cfg.DefaultHeadless)

	cfg.Mode = Mode(v.GetString("mode"))
	cfg.GRPCAddr = v.GetString("grpc_addr")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.P2PAuthURL = v.GetString("p2p_auth_url")
	cfg.P2PSignalingURL = v.GetString("p2p_signaling_url")
	cfg.CredentialsPath = v.GetString("credentials_path")
	cfg.DownloadPath = v.GetString("download_path")
	if n := v.GetInt("max_concurrent_jobs"); n > 0 {
		cfg.MaxConcurrentJobs = n
	}
	if secs := v.GetInt("job_timeout"); secs > 0 {
		cfg.JobTimeout = time.Duration(secs) * time.Second
	}
	if secs := v.GetInt("account_delay"); secs > 0 {
		cfg.AccountDelay = time.Duration(secs) * time.Second
	}
	cfg.DefaultHeadless = v.GetBool("default_headless")
	cfg.JWTSecret = v.GetString("jwt_secret")
	cfg.JWTIssuer = v.GetString("jwt_issuer")
	cfg.AuthToken = v.GetString("auth_token")

	if cfg.Mode != ModeGRPC && cfg.Mode != ModeP2P {
		cfg.Mode = ModeGRPC
	}

	return cfg, nil
}
