package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/app"
	"github.com/JakeFAU/crawldir/internal/config"
	"github.com/JakeFAU/crawldir/internal/crawler"
	"github.com/JakeFAU/crawldir/internal/logging"
	"github.com/JakeFAU/crawldir/internal/storage/memory"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests substitute their own.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetIngester() crawler.Ingester
	GetRecorder() crawler.MultiRecorder
	GetOutcomes() *memory.OutcomeStore
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type globalFlags struct {
	cfgFile string
	quiet   bool
}

// rootCommand owns the command tree and the App built for one execution.
type rootCommand struct {
	cmd *cobra.Command
	app App
}

func newRootCmd() *rootCommand {
	v := viper.New()
	globals := &globalFlags{}
	root := &rootCommand{}

	root.cmd = &cobra.Command{
		Use:           "alephclient",
		Short:         "Mirror local files and directory trees into Aleph collections",
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing and before the subcommand's RunE, so flag
		// values are visible to config.Load through the bound viper keys.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, globals.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			root.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := root.cmd.PersistentFlags()
	flags.StringVar(&globals.cfgFile, "config", "", "config file (YAML)")
	flags.BoolVarP(&globals.quiet, "quiet", "q", false, "disable the progress spinner")
	flags.String("host", "", "Aleph base URL (env ALEPH_HOST)")
	flags.String("api-key", "", "Aleph API key (env ALEPH_API_KEY)")
	flags.IntP("retries", "r", 5, "maximum attempts per upload (env ALEPHCLIENT_MAX_TRIES)")
	mustBindFlags(v, flags, map[string]string{
		"aleph.host":    "host",
		"aleph.api_key": "api-key",
		"aleph.retries": "retries",
	})

	root.cmd.AddCommand(newCrawlDirCmd(v, globals))
	return root
}

// execute runs the command tree and closes the App whether or not the
// command succeeded; cobra skips post-run hooks on error.
func (r *rootCommand) execute(ctx context.Context, args []string) error {
	defer func() {
		if r.app != nil {
			r.app.Close()
			r.app = nil
		}
	}()
	if args != nil {
		r.cmd.SetArgs(args)
	}
	return r.cmd.ExecuteContext(ctx)
}

func mustBindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().execute(ctx, nil)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
