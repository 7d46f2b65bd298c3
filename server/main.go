// server/main.go
package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rexlx/quill/blog"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	configPath := flag.StringP("config", "c", "", "path to a YAML config file")
	addr := flag.String("addr", "", "listen address (overrides ADDR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("could not load %s: %v", *envFile, err)
	}

	cfg, err := blog.LoadConfig(*configPath, os.LookupEnv)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if flag.CommandLine.Changed("addr") {
		cfg.Addr = *addr
	}
	if flag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := blog.NewDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("could not initialize database: %v", err)
	}
	defer db.Close()
	log.Info("connected to the database")
	if err := db.CreateTables(ctx); err != nil {
		log.Fatalf("could not create tables: %v", err)
	}

	if cfg.Admin.Email != "" {
		creds := blog.NewCredentials(db, cfg.PasswordCost)
		admin, err := creds.EnsureUser(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			log.Fatalf("could not bootstrap admin %s: %v", cfg.Admin.Email, err)
		}
		if cfg.AdminID == 0 {
			cfg.AdminID = admin.ID
		}
	}
	log.WithField("admin_id", cfg.AdminID).Info("admin configured")

	store, err := sessionStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("could not set up session store: %v", err)
	}

	var mailer blog.Mailer
	if cfg.MailEnabled() {
		mailer = blog.NewBreakerMailer(blog.NewSMTPMailer(cfg.Mail), 3, time.Minute, log)
	} else {
		log.Warn("EMAIL_ADDRESS/EMAIL_PASSWORD not set; the contact form will report failures")
	}

	blogHandler, err := blog.NewHandlers(blog.Options{
		Users:        db,
		Posts:        db,
		SessionStore: store,
		Session:      cfg.Session,
		AdminID:      cfg.AdminID,
		PasswordCost: cfg.PasswordCost,
		Mailer:       mailer,
		Logger:       log,
	})
	if err != nil {
		log.Fatalf("could not create blog handler: %v", err)
	}

	svr := &http.Server{
		Addr:         cfg.Addr,
		Handler:      blogHandler.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     stdlog.New(log.WriterLevel(logrus.ErrorLevel), "", 0),
	}

	go func() {
		<-ctx.Done()
		log.Info("gracefully shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svr.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown did not complete")
		}
	}()

	log.Infof("starting blog server on %s", cfg.Addr)
	if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func sessionStore(ctx context.Context, cfg blog.Config, db *blog.Database) (scs.Store, error) {
	secret := []byte(cfg.SecretKey)
	switch cfg.Session.Store {
	case blog.SessionStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.Redis.Addr).Info("sessions stored in redis")
		return blog.NewRedisSessionStore(rdb, secret), nil
	case blog.SessionStoreMemory:
		log.Warn("sessions kept in memory; logins are lost on restart")
		return memstore.New(), nil
	default:
		pg := blog.NewPostgresSessionStore(db, secret)
		go pg.StartCleanup(ctx, cfg.Session.CleanupInterval, log)
		return pg, nil
	}
}
