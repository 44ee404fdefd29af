package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// defaultConfigFile is picked up from the working directory when --config is not given.
const defaultConfigFile = "cognicore.yml"

var (
	version string
	commit  string
	date    string

	configPath   string
	redisURL     string
	instanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cognicore",
	Short: "Cognicore - cognitive observability reasoning core",
	Long: `Cognicore turns raw workflow events and resource metrics into explained
risk. Each cycle runs detector agents over a sliding observation window,
scores risk, links causes to effects and synthesizes hypotheses and
recommendations onto a shared blackboard backed by Redis.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to cognicore.yml (default: ./cognicore.yml when present)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL, overrides config and REDIS_URL")
	rootCmd.PersistentFlags().StringVar(&instanceName, "instance", "", "Instance name, overrides config and COGNICORE_INSTANCE")
}

// loadConfig resolves configuration from file, environment and flags, in
// increasing order of precedence.
func loadConfig() (*config.CognicoreConfig, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to check for %s: %w", defaultConfigFile, err)
		}
	}

	var cfg *config.CognicoreConfig
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, printer.ErrorWithContext(
				"invalid configuration",
				err.Error(),
				map[string]string{"file": path},
				[]string{"Fix the configuration file, or run without --config to use defaults"},
			)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	cfg.ApplyEnv(os.Getenv)
	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if instanceName != "" {
		cfg.Instance = instanceName
	}
	return cfg, nil
}

// connect opens and verifies a blackboard client for the configured instance.
func connect(ctx context.Context, cfg *config.CognicoreConfig) (*blackboard.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse '%s': %v", cfg.Redis.URL, err),
			[]string{"Use the form redis://host:port/db, e.g.\n  cognicore run --redis-url redis://localhost:6379"},
		)
	}

	client, err := blackboard.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create blackboard client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"instance": cfg.Instance, "error": err.Error()},
			[]string{
				"Check that Redis is running:\n  redis-cli -u " + cfg.Redis.URL + " ping",
				"Point at another server:\n  cognicore --redis-url redis://host:6379 ...",
			},
		)
	}
	return client, nil
}

// setup is loadConfig followed by connect.
func setup(ctx context.Context) (*config.CognicoreConfig, *blackboard.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}
