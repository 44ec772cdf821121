package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Joseda-hg/taskboard/internal/config"
	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/Joseda-hg/taskboard/internal/logging"
	"github.com/Joseda-hg/taskboard/internal/notify"
	"github.com/Joseda-hg/taskboard/internal/tui"
	"github.com/Joseda-hg/taskboard/internal/web"
	"github.com/sirupsen/logrus"
)

const version = "0.3.0"

var dueLayouts = []string{"2006-01-02T15:04", "2006-01-02"}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("taskboard", flag.ContinueOnError)
	configPathFlag := flags.String("config", "", "config file path (.json or .toml)")
	dbPathFlag := flags.String("db", "", "sqlite db path")
	driverFlag := flags.String("driver", "", "database driver: sqlite, postgres or mysql")
	dsnFlag := flags.String("dsn", "", "database DSN for postgres or mysql")
	webFlag := flags.Bool("web", false, "enable web server")
	webOnlyFlag := flags.Bool("web-only", false, "run web server only")
	portFlag := flags.Int("port", 0, "web server port")
	tokenFlag := flags.Bool("token", false, "print a bearer token for the web routes and exit")
	addFlag := flags.String("add", "", "create a task with this description and exit")
	dueFlag := flags.String("due", "", "due date for -add, YYYY-MM-DD or YYYY-MM-DDTHH:MM")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if *driverFlag != "" {
		cfg.DB.Driver = *driverFlag
	}
	if *dsnFlag != "" {
		cfg.DB.DSN = *dsnFlag
	}
	if *dbPathFlag != "" {
		cfg.DB.Path = *dbPathFlag
	}
	if cfg.DB.Driver == db.DriverSQLite && cfg.DB.Path == "" && cfg.DB.DSN == "" {
		cfg.DB.Path = filepath.Join(filepath.Dir(cfgPath), "taskboard.db")
	}
	if *webFlag || *webOnlyFlag {
		cfg.WebEnabled = true
	}
	if *portFlag != 0 {
		cfg.WebPort = *portFlag
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if *tokenFlag {
		token, err := web.IssueToken(cfg.AuthSecret, "cli", 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	runTUI := !*webOnlyFlag && *addFlag == ""
	logOut, closeLog, err := logOutput(cfg, cfgPath, runTUI)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logging.New("taskboard", cfg.LogLevel, logOut)

	store, err := openStore(cfg.DB)
	if err != nil {
		logger.WithError(err).Error("failed to open store")
		return fmt.Errorf("open store: %w", err)
	}
	defer store.DB.Close()

	if *addFlag != "" {
		return addTask(store, *addFlag, *dueFlag)
	}

	notifier := newNotifier(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	var serverErr <-chan error
	if cfg.WebEnabled {
		handler := web.NewServer(store, notifier, logger.WithField("component", "web"), web.Options{
			Version:    version,
			AuthSecret: cfg.AuthSecret,
			RateLimit:  cfg.RateLimit,
		}).Handler()
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.WebPort),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		serverErr = startServer(srv, logger)
	}
	defer shutdown(srv, logger)

	if *webOnlyFlag {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case err := <-serverErr:
			if err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		}
	}

	if err := tui.Run(store, notifier); err != nil {
		logger.WithError(err).Error("terminal ui failed")
		return err
	}
	return nil
}

// startServer runs srv in the background. A listen failure is logged when it
// happens and delivered on the returned channel, which closes once the server
// stops.
func startServer(srv *http.Server, logger *logrus.Entry) <-chan error {
	serverErr := make(chan error, 1)
	go func() {
		defer close(serverErr)
		logger.Infof("web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("web server error")
			serverErr <- err
		}
	}()
	return serverErr
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func openStore(cfg config.DBConfig) (*db.Store, error) {
	if cfg.Driver == db.DriverSQLite && cfg.DSN == "" {
		if err := config.EnsureDir(cfg.Path); err != nil {
			return nil, err
		}
	}

	idle, err := cfg.IdleTime()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(db.Options{
		Driver:       cfg.Driver,
		DSN:          cfg.DataSource(),
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		MaxIdleTime:  idle,
	})
	if err != nil {
		return nil, err
	}

	return db.NewStore(sqlDB), nil
}

func newNotifier(cfg config.Config, logger *logrus.Entry) notify.Notifier {
	if cfg.SMS.Enabled() {
		return notify.NewSMSGateway(cfg.SMS, logger.WithField("component", "sms"))
	}
	return notify.LogNotifier{Log: logger.WithField("component", "notify")}
}

// logOutput keeps logs off the terminal while the TUI draws on it.
func logOutput(cfg config.Config, cfgPath string, toFile bool) (io.Writer, func(), error) {
	if !toFile {
		return os.Stderr, func() {}, nil
	}

	dir := filepath.Dir(cfgPath)
	if cfg.DB.Driver == db.DriverSQLite && cfg.DB.Path != "" {
		dir = filepath.Dir(cfg.DB.Path)
	}
	path := filepath.Join(dir, "taskboard.log")
	if err := config.EnsureDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

func addTask(store *db.Store, description, dueValue string) error {
	input := db.TaskInput{Description: strings.TrimSpace(description)}
	if dueValue != "" {
		due, err := parseDue(dueValue)
		if err != nil {
			return err
		}
		input.Due = &due
	}

	task, err := store.CreateTask(context.Background(), input)
	if err != nil {
		return err
	}
	fmt.Printf("created task #%d (due %s)\n", task.ID, task.DueLabel())
	return nil
}

func parseDue(value string) (time.Time, error) {
	for _, layout := range dueLayouts {
		if due, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return due, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid -due %q, want YYYY-MM-DD or YYYY-MM-DDTHH:MM", value)
}

func shutdown(srv *http.Server, logger *logrus.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("web server shutdown failed")
		return
	}
	logger.Info("web server stopped")
}
