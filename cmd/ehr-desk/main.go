package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/desk/internal/config"
	"github.com/ehr/desk/internal/desk"
	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/identity"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/metrics"
	"github.com/ehr/desk/internal/platform/middleware"
	"github.com/ehr/desk/internal/platform/session"
	"github.com/ehr/desk/internal/platform/validation"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ehr-desk:", err)
		os.Exit(1)
	}
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	jar      *session.Jar
	api      *apiclient.Client
	svc      desk.Services
}

func newRootCmd() *cobra.Command {
	var (
		a           = &app{}
		apiURL      string
		sessionFile string
	)

	rootCmd := &cobra.Command{
		Use:           "ehr-desk",
		Short:         "Doctor's workstation for the EHR API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.APIBaseURL = strings.TrimRight(apiURL, "/")
			}
			if sessionFile != "" {
				cfg.SessionFile = sessionFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.init(cfg, cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "cookie file (overrides SESSION_FILE)")

	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(authCmds(a)...)
	rootCmd.AddCommand(patientCmd(a))
	rootCmd.AddCommand(visitCmd(a))
	rootCmd.AddCommand(sheetCmd(a))
	rootCmd.AddCommand(docCmd(a))
	return rootCmd
}

// newLogger writes to out (stderr for commands, so stdout stays JSON).
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func (a *app) init(cfg *config.Config, logOut io.Writer) error {
	a.cfg = cfg
	a.log = newLogger(cfg, logOut)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector("ehr_desk", a.registry)

	jar, err := session.Open(cfg.SessionFile, a.log)
	if err != nil {
		return err
	}
	a.jar = jar

	api, err := apiclient.New(apiclient.Options{
		BaseURL: cfg.APIBaseURL,
		Jar:     jar,
		Timeout: cfg.RequestTimeout,
		Logger:  a.log,
		Metrics: a.metrics,
		Breaker: apiclient.BreakerSettings{
			Enabled:     cfg.BreakerEnabled,
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
		},
	})
	if err != nil {
		return err
	}
	a.api = api

	v := validation.New()
	a.svc = desk.Services{
		Identity:  identity.NewService(identity.NewHTTPRepo(api), v, jar, a.log),
		Patients:  patient.NewService(patient.NewHTTPRepo(api), v, a.metrics, a.log),
		Visits:    visit.NewService(visit.NewHTTPRepo(api), a.metrics, a.log),
		Sheets:    sheet.NewService(sheet.NewHTTPStore(api, cfg.DigestiveLegacyEndpoint), a.metrics, a.log),
		Documents: documents.NewService(documents.NewHTTPRepo(api), api.Origin(), a.metrics, a.log),
	}
	return nil
}

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workstation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(a)
		},
	}
}

func newServer(a *app, d *desk.Coordinator) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.log))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("1M", "25M"))
	if a.cfg.MetricsEnabled {
		e.Use(a.metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":        "ok",
			"version":       version,
			"authenticated": d.State().Authenticated,
		})
	})

	g := e.Group("/desk", middleware.RequestTimeout(2*a.cfg.RequestTimeout))
	desk.NewHandler(d).RegisterRoutes(g)
	return e
}

func runServer(a *app) error {
	d := desk.New(a.svc, desk.Options{
		ReloadDelay: a.cfg.ReloadDelay,
		Metrics:     a.metrics,
		Logger:      a.log,
	})
	st := d.Start(context.Background())
	a.log.Info().Bool("authenticated", st.Authenticated).Str("api", a.cfg.APIBaseURL).Msg("session gate checked")

	e := newServer(a, d)

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.DeskPort
		a.log.Info().Str("addr", addr).Msg("starting desk server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.log.Info().Msg("shutting down desk server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info().Msg("desk server stopped")
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
