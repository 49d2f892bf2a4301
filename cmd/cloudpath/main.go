package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/pkg/cloudpath"
	"github.com/objectfs/cloudpath/pkg/retry"
	"github.com/objectfs/cloudpath/pkg/utils"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Configuration
	fs      *cloudpath.FileSystem
	retryer *retry.Retryer
	logger  *slog.Logger
	closers []io.Closer

	// options are applied when the filesystem is built
	options []cloudpath.Option
}

func newApp() *app {
	return &app{v: viper.New(), logger: slog.Default()}
}

// ensureFileSystem loads the configuration and builds the filesystem once per process.
func (a *app) ensureFileSystem(ctx context.Context) error {
	if a.fs != nil {
		return nil
	}

	cfg := config.NewDefault()
	if used := a.v.ConfigFileUsed(); used != "" {
		if err := cfg.LoadFromFile(used); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	a.applyOverrides(cfg)
	if _, ok := cfg.Providers["mem"]; !ok {
		cfg.Providers["mem"] = config.DefaultProvider(config.KindMemory)
	}

	closer, err := utils.SetupLogging(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.LogFile)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closer)
	a.logger = slog.Default().With("component", "cli")

	fsys, err := cloudpath.New(cfg, a.options...)
	if err != nil {
		return err
	}
	if cfg.Global.MetricsAddr != "" {
		if err := fsys.Metrics().Start(ctx); err != nil {
			_ = fsys.Close(ctx)
			return err
		}
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.v.GetInt("retry.attempts")
	rc.InitialDelay = a.v.GetDuration("retry.initial_delay")

	a.cfg = cfg
	a.fs = fsys
	a.retryer = retry.New(rc)
	return nil
}

// applyOverrides copies flag, environment and config-file values known to viper over cfg.
func (a *app) applyOverrides(cfg *config.Configuration) {
	if s := a.v.GetString("global.log_level"); s != "" {
		cfg.Global.LogLevel = strings.ToUpper(s)
	}
	if s := a.v.GetString("global.log_format"); s != "" {
		cfg.Global.LogFormat = strings.ToLower(s)
	}
	if s := a.v.GetString("global.log_file"); s != "" {
		cfg.Global.LogFile = s
	}
	if s := a.v.GetString("global.metrics_addr"); s != "" {
		cfg.Global.MetricsAddr = s
	}
}

// do runs op through the retryer, logging every retry.
func (a *app) do(ctx context.Context, op string, fn func(context.Context) error) error {
	return a.retryer.WithOnRetry(retry.LogRetries(a.logger, op)).DoWithContext(ctx, fn)
}

func (a *app) path(raw string) (cloudpath.Path, error) {
	return a.fs.Path(raw)
}

func (a *app) close() {
	if a.fs != nil {
		timeout := 30 * time.Second
		if a.cfg != nil && a.cfg.Performance.ShutdownTimeout > 0 {
			timeout = a.cfg.Performance.ShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.fs.Close(ctx); err != nil {
			a.logger.Warn("Shutdown incomplete", "error", err)
		}
		cancel()
		a.fs = nil
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cloudpath",
		Short:         "Path-style access to local files and object stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(); err != nil {
				return err
			}
			return a.ensureFileSystem(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("log-level", "", "log level: DEBUG|INFO|WARN|ERROR")
	flags.String("log-format", "", "log format: text|json")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.Int("retries", retry.DefaultConfig().MaxAttempts, "attempts per operation for transient failures")
	flags.Duration("retry-delay", retry.DefaultConfig().InitialDelay, "delay before the first retry")

	a.bindConfig("global.log_level", flags.Lookup("log-level"))
	a.bindConfig("global.log_format", flags.Lookup("log-format"))
	a.bindConfig("global.log_file", flags.Lookup("log-file"))
	a.bindConfig("global.metrics_addr", flags.Lookup("metrics-addr"))
	a.bindConfig("retry.attempts", flags.Lookup("retries"))
	a.bindConfig("retry.initial_delay", flags.Lookup("retry-delay"))

	root.AddCommand(
		newLsCmd(a),
		newCatCmd(a),
		newPutCmd(a),
		newCpCmd(a),
		newMvCmd(a),
		newRmCmd(a),
		newStatCmd(a),
		newChecksumCmd(a),
		newURLCmd(a),
		newLocalizeCmd(a),
		newTouchCmd(a),
		newMkdirCmd(a),
		newFindCmd(a),
		newGlobCmd(a),
		newConfigCmd(a),
	)
	return root
}

// initConfig loads .env, then locates the config file and binds CLOUDPATH_* variables.
func (a *app) initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("cloudpath")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "cloudpath"))
		}
	}
	a.v.SetEnvPrefix("CLOUDPATH")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) bindConfig(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
