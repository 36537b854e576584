package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/slatehq/slatebox/internal/api"
	"github.com/slatehq/slatebox/internal/loader"
	"github.com/slatehq/slatebox/internal/schema"
	"github.com/slatehq/slatebox/internal/utils"
	"github.com/slatehq/slatebox/internal/version"
)

var home, _ = os.UserHomeDir()

const headerArt = `
 ___ _     _       _
/ __| |__ | |_ ___| |__  _____ __
\__ \ / _` + "`" + ` |  _/ -_) '_ \/ _ \ \ /
|___/_\__,_|\__\___|_.__/\___/_\_\
`

var rootCmd = &cobra.Command{
	Use:     "slatebox [dir]",
	Short:   "Sync a directory of content entries into a queryable store",
	Args:    cobra.MaximumNArgs(1),
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		setupLogging()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("dir")
		if len(args) > 0 {
			dir = args[0]
		}

		cfg := loader.Config{
			Name:          viper.GetString("name"),
			RootDir:       viper.GetString("root"),
			Dir:           dir,
			Patterns:      viper.GetStringSlice("patterns"),
			StorePath:     viper.GetString("store"),
			Concurrency:   viper.GetInt("concurrency"),
			BaseURL:       viper.GetString("base_url"),
			DefaultAuthor: viper.GetString("author"),
			I18n:          viper.GetBool("i18n"),
			DefaultLocale: viper.GetString("default_locale"),
			Resync:        viper.GetDuration("resync"),
			Rules:         schema.Rules(viper.GetStringMap("rules")),
		}

		cmd.SilenceUsage = true
		showHeader()

		serve := viper.GetBool("serve")
		watch := viper.GetBool("watch") || serve

		defer slog.Info("Bye!")

		if !watch {
			ldr, err := loader.New(cfg)
			if err != nil {
				return err
			}
			defer ldr.Close()
			return ldr.Sync(cmd.Context())
		}

		return runDaemon(cmd.Context(), cfg, serve)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("dir", "d", ".", "Content directory to sync")
	rootCmd.Flags().String("root", "", "Project root (defaults to the working directory)")
	rootCmd.Flags().StringP("name", "n", loader.DefaultName, "Collection name")
	rootCmd.Flags().StringSliceP("pattern", "p", nil, "Glob patterns selecting entries, prefix with ! to exclude")
	rootCmd.Flags().String("store", "", "SQLite store path (default <root>/.slatebox/<name>.db)")
	rootCmd.Flags().IntP("concurrency", "j", loader.DefaultConcurrency, "Parallel entry syncs")
	rootCmd.Flags().String("base-url", "", "Public base URL for rewritten asset links")
	rootCmd.Flags().String("author", "", "Default author injected into front matter")
	rootCmd.Flags().Bool("i18n", false, "Derive entry locale from the first path segment")
	rootCmd.Flags().String("default-locale", "en", "Locale for entries outside a locale directory")
	rootCmd.Flags().Duration("resync", 0, "Periodic full resync interval while watching (0 disables)")
	rootCmd.Flags().BoolP("watch", "w", false, "Keep watching for changes after the initial sync")
	rootCmd.Flags().Bool("serve", false, "Serve the query API (implies --watch)")
	rootCmd.Flags().String("addr", ":7777", "Query API listen address")
	rootCmd.Flags().String("log-file", "", "Also log to this file, with rotation")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ./slatebox.yaml)")
}

func main() {
	// early logger; replaced by setupLogging once flags and config load
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:   slog.LevelInfo,
		NoColor: !isatty.IsTerminal(os.Stdout.Fd()),
	})))

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runDaemon wires the loader, the event hub and optionally the query API
// into one lifecycle.
func runDaemon(ctx context.Context, cfg loader.Config, serve bool) error {
	hub := api.NewHub()
	cfg.Events = hub

	ldr, err := loader.New(cfg)
	if err != nil {
		return err
	}
	defer ldr.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ldr.Run(ctx)
	})

	if serve {
		catalog, ok := ldr.Store().(api.Catalog)
		if !ok {
			return fmt.Errorf("configured store does not support the query api")
		}
		srv := api.New(&api.Config{Addr: viper.GetString("addr")}, catalog, ldr, hub)
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".config", "slatebox"))
		viper.SetConfigName("slatebox")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("dir", cmd.Flags().Lookup("dir"))
	viper.BindPFlag("root", cmd.Flags().Lookup("root"))
	viper.BindPFlag("name", cmd.Flags().Lookup("name"))
	viper.BindPFlag("patterns", cmd.Flags().Lookup("pattern"))
	viper.BindPFlag("store", cmd.Flags().Lookup("store"))
	viper.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("base_url", cmd.Flags().Lookup("base-url"))
	viper.BindPFlag("author", cmd.Flags().Lookup("author"))
	viper.BindPFlag("i18n", cmd.Flags().Lookup("i18n"))
	viper.BindPFlag("default_locale", cmd.Flags().Lookup("default-locale"))
	viper.BindPFlag("resync", cmd.Flags().Lookup("resync"))
	viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))
	viper.BindPFlag("serve", cmd.Flags().Lookup("serve"))
	viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	viper.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))
	viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	viper.SetEnvPrefix("SLATEBOX")
	viper.AutomaticEnv()

	return nil
}

func setupLogging() {
	level := parseLevel(viper.GetString("log_level"))

	handlers := []slog.Handler{
		tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		}),
	}

	if logFile := viper.GetString("log_file"); logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewTextHandler(rotated, &slog.HandlerOptions{Level: level}))
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func showHeader() {
	fmt.Print(headerArt)
	fmt.Printf(" %s\n\n", version.ShortWithApp())
}
