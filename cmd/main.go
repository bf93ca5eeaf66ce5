package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"niftiwork/internal/api"
	"niftiwork/internal/config"
	"niftiwork/internal/convert"
	"niftiwork/internal/engine"
	fileutil "niftiwork/internal/file"
	"niftiwork/internal/resolve"
	"niftiwork/internal/task"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("niftiwork failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "niftiwork",
		Short:         "Convert DICOM and NRRD instance data to NIfTI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML config file")
	root.AddCommand(newServeCommand(&configPath), newConvertCommand(&configPath))
	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion service",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func newConvertCommand(configPath *string) *cobra.Command {
	var (
		engineName string
		overwrite  bool
		multi      bool
		verbose    bool
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "convert <instance-id>",
		Short: "Convert one instance synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("engine") {
				cfg.Engine = engine.Engine(engineName)
			}
			if flags.Changed("overwrite") {
				cfg.OverwriteExistingFile = overwrite
			}
			if flags.Changed("multi") {
				cfg.AllowMultiInput = multi
			}
			cfg.Verbose = cfg.Verbose || verbose
			cfg.Debug = cfg.Debug || debug
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err //nolint:wrapcheck
			}
			setLogLevel(cfg)

			tm, err := buildTaskManager(cfg)
			if err != nil {
				return err
			}
			result, err := tm.RunSync(cmd.Context(), args[0])
			if result != nil {
				printReport(cmd, result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "", "conversion engine for DICOM input (plastimatch|dcm2niix)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing NIfTI files")
	cmd.Flags().BoolVar(&multi, "multi", false, "convert every matching input, not only the first")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose converter output")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug converter output")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	setLogLevel(cfg)
	return cfg, nil
}

func setLogLevel(cfg config.Config) {
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func serve(cfg config.Config) error {
	router := setupRouter()

	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("ensure data dir %s: %w", cfg.DataDir, err)
	}

	taskManager, err := buildTaskManager(cfg)
	if err != nil {
		return err
	}
	if err := taskManager.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("load tasks from disk")
	}
	api.NewAPI(taskManager).RegisterRoutes(router)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	taskManager.SetBaseContext(baseCtx)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Str("engine", string(cfg.Engine)).Str("data_dir", cfg.DataDir).Msg("niftiwork listening")

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, taskManager, shutdownTimeout)
	return nil
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildTaskManager(cfg config.Config) (*task.Manager, error) {
	targets, err := cfg.Selectors()
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	resolver := resolve.NewManifestResolver(resolve.Options{
		DataDir:      cfg.DataDir,
		Targets:      targets,
		Bundle:       cfg.BundleName,
		FileTemplate: cfg.ConvertedFileName,
	})
	controller := convert.NewController(convert.Options{
		Engine: cfg.Engine,
		Policy: convert.Policy{
			AllowMultiInput:       cfg.AllowMultiInput,
			OverwriteExistingFile: cfg.OverwriteExistingFile,
		},
		Verbosity: cfg.Verbosity(),
		Adapters: []engine.Adapter{
			engine.NewPlastimatch(cfg.PlastimatchBin, nil),
			engine.NewDcm2niix(cfg.Dcm2niixBin, nil),
		},
	})
	return task.NewManager(task.Options{
		DataDir:            cfg.DataDir,
		MaxConcurrentTasks: cfg.MaxConcurrentRuns,
	}, resolver, controller), nil
}

func printReport(cmd *cobra.Command, t *task.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "task %s instance %s: %s\n", t.ID, t.InstanceID, t.Status)
	if t.Report == nil {
		return
	}
	for _, item := range t.Report.Items {
		fmt.Fprintf(out, "  [%d] %-9s %s -> %s", item.Index, item.State, item.Input, item.Output)
		if item.Message != "" {
			fmt.Fprintf(out, " (%s)", item.Message)
		}
		fmt.Fprintln(out)
	}
	if t.Report.Dropped > 0 {
		fmt.Fprintf(out, "  %d more input(s) ignored: multi input disabled\n", t.Report.Dropped)
	}
	if t.Report.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", t.Report.Error)
	}
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, tm *task.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	done := tm.WaitAll(ctx)
	if !done {
		log.Warn().Msg("background workers did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
