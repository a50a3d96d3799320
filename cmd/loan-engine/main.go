package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/loan-engine/internal/cards"
	"github.com/iwvelando/loan-engine/internal/config"
	"github.com/iwvelando/loan-engine/internal/events"
	"github.com/iwvelando/loan-engine/internal/loans"
	"github.com/iwvelando/loan-engine/internal/metrics"
	"github.com/iwvelando/loan-engine/internal/server"
	"github.com/iwvelando/loan-engine/internal/storage"
	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/output"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: loan-engine <command> [flags]

commands:
  serve      run the HTTP API
  schedule   print an amortization schedule
`

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "schedule":
		err = runSchedule(os.Stdout, os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"%s failed\", \"error\": %q}\n", os.Args[1], err.Error())
		os.Exit(1)
	}
}

// loadConfiguration reads path, or config.yaml in the working directory when
// path is empty and that file exists, or falls back to defaults.
func loadConfiguration(path string) (*config.Configuration, error) {
	if path == "" {
		if _, err := os.Stat(constants.DefaultConfigFile); err == nil {
			path = constants.DefaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	conf, err := config.LoadConfiguration(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration at %q: %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func runServe(args []string) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	configLocation := fset.String("config", "", "path to configuration file")
	logLevel := fset.String("log-level", "", "log level override (debug, info, warn, error)")
	address := fset.String("address", "", "listen address override")
	if err := fset.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfiguration(*configLocation)
	if err != nil {
		return err
	}
	if *address != "" {
		conf.Server.Address = *address
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Config{
		Backend:    conf.Storage.Backend,
		SQLitePath: conf.Storage.SQLitePath,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Warn("failed to close storage", zap.String("op", "main.runServe"), zap.Error(err))
		}
	}()

	var collector *metrics.Collector
	if conf.Metrics.Enabled {
		collector = metrics.NewCollector(logger)
	}

	var publisher events.Publisher = events.Nop{}
	if conf.Events.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(conf.Events.AMQPURL, conf.Events.Exchange, conf.Events.Queue, logger)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", zap.String("op", "main.runServe"), zap.Error(err))
		}
	}()

	loanService := loans.NewService(store.Repositories, logger,
		loans.WithMetrics(collector),
		loans.WithPublisher(publisher),
	)
	cardService := cards.NewService(store.Repositories, logger,
		cards.WithMetrics(collector),
		cards.WithPublisher(publisher),
	)

	handler := server.NewHandler(logger, server.Options{
		Loans:        loanService,
		Cards:        cardService,
		Metrics:      collector,
		MaxBodyBytes: conf.Server.MaxBodyBytes(),
		Version:      version,
	})
	srv := server.NewServer(conf.Server, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting loan-engine server",
			zap.String("op", "main.runServe"),
			zap.String("address", srv.Addr),
			zap.String("storage", conf.Storage.Backend),
			zap.Bool("events", conf.Events.Enabled),
			zap.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received", zap.String("op", "main.runServe"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped gracefully", zap.String("op", "main.runServe"))
	return nil
}

func runSchedule(w io.Writer, args []string) error {
	fset := flag.NewFlagSet("schedule", flag.ContinueOnError)
	configLocation := fset.String("config", "", "path to configuration file")
	logLevel := fset.String("log-level", "", "log level override (debug, info, warn, error)")
	outputFormatFlag := fset.String("output-format", "", "type of output override: pretty, csv, yaml")
	name := fset.String("name", "loan", "loan name shown in the output")
	principal := fset.String("principal", "", "amount borrowed")
	rate := fset.String("rate", "0", "annual interest rate in percent")
	term := fset.Int("term", 0, "term in months")
	start := fset.String("start", "", "start date (YYYY-MM-DD), defaults to today")
	paymentDay := fset.Int("payment-day", 0, "day of month payments fall on, defaults to the start day")
	if err := fset.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfiguration(*configLocation)
	if err != nil {
		return err
	}
	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	params, err := scheduleParams(*principal, *rate, *term, *start, *paymentDay)
	if err != nil {
		return err
	}

	schedule, err := amortization.NewScheduleGenerator(logger).Generate(*name, params)
	if err != nil {
		return err
	}
	return output.Write(w, outputFormat, *name, schedule)
}

func scheduleParams(principal, rate string, term int, start string, paymentDay int) (amortization.Params, error) {
	p, err := decimal.NewFromString(principal)
	if err != nil {
		return amortization.Params{}, fmt.Errorf("invalid -principal %q: %w", principal, err)
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return amortization.Params{}, fmt.Errorf("invalid -rate %q: %w", rate, err)
	}

	startDate := datetime.Midnight(time.Now().UTC())
	if start != "" {
		startDate, err = datetime.ParseDate(start)
		if err != nil {
			return amortization.Params{}, fmt.Errorf("invalid -start %q: %w", start, err)
		}
	}

	return amortization.Params{
		Principal:         p,
		AnnualRatePercent: r,
		TermMonths:        term,
		StartDate:         startDate,
		PaymentDay:        paymentDay,
	}, nil
}
