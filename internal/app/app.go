// Package app assembles repositories, services and the router from config.
package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/config"
	httphandler "github.com/kamdhenuseva/server/internal/http"
	"github.com/kamdhenuseva/server/internal/http/handlers"
	"github.com/kamdhenuseva/server/internal/mail"
	"github.com/kamdhenuseva/server/internal/middleware"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/payment"
	"github.com/kamdhenuseva/server/internal/profile"
	"github.com/kamdhenuseva/server/internal/repo"
)

const (
	loginWindow  = 10 * time.Minute
	loginMaxHits = 15
	bcryptCost   = 10
)

// App is the assembled HTTP application.
type App struct {
	Handler http.Handler

	dispatcher *mail.Dispatcher
	closers    []func() error
}

// Options override collaborators that are normally built from config.
type Options struct {
	// Mailer replaces the SMTP or log mailer.
	Mailer mail.Mailer
	// Gateway replaces the Razorpay client.
	Gateway payment.Gateway
}

// New wires the application on an open, migrated database.
func New(cfg *config.Config, database *sql.DB, logger *zap.Logger, opts Options) *App {
	a := &App{}

	accounts := repo.NewAccountRepo(database)
	sessions := repo.NewSessionRepo(database)
	donations := repo.NewDonationRepo(database)
	pujas := repo.NewPujaRepo(database)

	mailer := opts.Mailer
	switch {
	case mailer != nil:
	case cfg.SMTP.Host != "":
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	default:
		logger.Warn("SMTP_HOST not set; mail is logged instead of sent")
		mailer = mail.NewLogMailer(logger)
	}
	a.dispatcher = mail.NewDispatcher(mailer, mail.DispatcherConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
	}, logger)
	a.dispatcher.Start()

	var loginLimiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, rdb.Close)
		loginLimiter = middleware.NewRedisRateLimiter(rdb, "ratelimit:login", loginWindow, loginMaxHits, logger)
		logger.Info("using redis rate limiter", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := middleware.NewRateLimiter(loginWindow, loginMaxHits)
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
		loginLimiter = mem
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	sessionIssuer := auth.NewSessionIssuer(jwtService, sessions, logger)
	otpIssuer := auth.NewOTPIssuer(accounts, mail.NewCodeSender(a.dispatcher), auth.DefaultOTPPolicy, nil, logger)
	hasher := auth.NewBcryptHasher(bcryptCost)
	authService := auth.NewService(accounts, otpIssuer, sessionIssuer, hasher, logger)
	profileService := profile.NewService(accounts, hasher, sessionIssuer, logger)

	gateway := opts.Gateway
	if gateway == nil {
		gateway = payment.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.BaseURL, logger)
	}
	donationService := payment.NewDonationService(accounts, donations, gateway, logger)
	pujaService := payment.NewPujaService(pujas, gateway, cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, logger)

	donationReconciler := payment.NewReconciler[model.Donation]("donation", cfg.Razorpay.WebhookSecret,
		payment.DonationLedger{Donations: donations},
		payment.NewDonationNotifier(accounts, donations, a.dispatcher, logger), logger)
	pujaReconciler := payment.NewReconciler[model.PujaOrder]("cow_puja", cfg.Razorpay.CowPujaWebhookSecret,
		payment.PujaLedger{Pujas: pujas},
		payment.NewPujaNotifier(a.dispatcher), logger)

	a.Handler = httphandler.NewRouter(httphandler.Deps{
		APIVersion:      cfg.APIVersion,
		AllowedOrigins:  cfg.ClientOrigins,
		Auth:            handlers.NewAuthHandler(authService, logger),
		Profile:         handlers.NewProfileHandler(profileService, logger),
		Donations:       handlers.NewDonationHandler(donationService, logger),
		Pujas:           handlers.NewPujaHandler(pujaService, logger),
		Health:          handlers.NewHealthHandler(database),
		DonationWebhook: handlers.NewWebhookHandler(donationReconciler, logger),
		PujaWebhook:     handlers.NewWebhookHandler(pujaReconciler, logger),
		Tokens:          authService,
		LoginLimiter:    loginLimiter,
		Logger:          logger,
	})
	return a
}

// Close drains queued mail within ctx and releases the rate limiter backend.
func (a *App) Close(ctx context.Context) error {
	err := a.dispatcher.Close(ctx)
	for _, c := range a.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
