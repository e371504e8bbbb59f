// Package app assembles services, handlers and the router around one datastore.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/config"
	appointmentHandler "github.com/jwalitptl/clinic-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	consultationHandler "github.com/jwalitptl/clinic-api/internal/handler/consultation"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/clinic-api/internal/handler/notification"
	paymentHandler "github.com/jwalitptl/clinic-api/internal/handler/payment"
	prescriptionHandler "github.com/jwalitptl/clinic-api/internal/handler/prescription"
	"github.com/jwalitptl/clinic-api/internal/handler/principal"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/realtime"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/router"
	appointmentService "github.com/jwalitptl/clinic-api/internal/service/appointment"
	authService "github.com/jwalitptl/clinic-api/internal/service/auth"
	consultationService "github.com/jwalitptl/clinic-api/internal/service/consultation"
	notificationService "github.com/jwalitptl/clinic-api/internal/service/notification"
	paymentService "github.com/jwalitptl/clinic-api/internal/service/payment"
	prescriptionService "github.com/jwalitptl/clinic-api/internal/service/prescription"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

type Deps struct {
	Config *config.Config
	Store  *repository.Store
	// Broker is optional; without it live pushes reach only this instance.
	Broker messaging.Broker
	// Messages receives email and SMS produced by lifecycle transitions.
	Messages outbound.Sender
	Registry *prometheus.Registry
	Logger   zerolog.Logger
}

type App struct {
	Router   *router.Router
	Relay    *realtime.Relay
	Presence *realtime.Registry
	Metrics  *metrics.Metrics

	Auth          *authService.Service
	Notifications *notificationService.Service
	Appointments  *appointmentService.Service
	Consultations *consultationService.Service
	Prescriptions *prescriptionService.Service
	Payments      *paymentService.Service
}

func New(deps Deps) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger

	if err := validator.RegisterGin(); err != nil {
		return nil, err
	}

	encryptor, err := security.NewAESEncryptor([]byte(cfg.Security.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(cfg.Metrics.Namespace, reg)
	presence := realtime.NewRegistry(m.PresenceConnections)
	relay := realtime.NewRelay(presence, deps.Broker, cfg.Server.InstanceID, logger)

	tokens := auth.NewJWTService(auth.Config{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
	})

	messages := deps.Messages
	if messages == nil {
		messages = outbound.NewLogSender(logger)
	}

	a := &App{Relay: relay, Presence: presence, Metrics: m}
	a.Auth = authService.NewService(deps.Store.Principals, tokens, security.NewBcryptHasher(cfg.Security.BcryptCost), logger, m)
	a.Notifications = notificationService.NewService(deps.Store.Notifications, relay, logger, m)
	a.Consultations = consultationService.NewService(deps.Store.Consultations, a.Notifications, encryptor, logger, m)
	a.Appointments = appointmentService.NewService(deps.Store.Appointments, deps.Store.Principals, a.Consultations, a.Notifications, messages, logger, m)
	a.Prescriptions = prescriptionService.NewService(deps.Store.Prescriptions, a.Consultations, a.Notifications, logger, m)
	a.Payments = paymentService.NewService(deps.Store.Appointments, a.Notifications, cfg.Security.PaymentSecret, logger)

	handlers := router.Handlers{
		Auth:          authHandler.NewHandler(a.Auth),
		Principals:    principal.NewHandler(a.Auth),
		Appointments:  appointmentHandler.NewHandler(a.Appointments, a.Consultations),
		Consultations: consultationHandler.NewHandler(a.Consultations, a.Prescriptions),
		Prescriptions: prescriptionHandler.NewHandler(a.Prescriptions),
		Notifications: notificationHandler.NewHandler(a.Notifications),
		Payments:      paymentHandler.NewHandler(a.Payments),
		Health:        health.NewHandler(deps.Store.Ping),
		Realtime:      realtime.NewHandler(presence, a.Auth, logger),
	}

	a.Router = router.NewRouter(cfg, middleware.NewAuthMiddleware(a.Auth), handlers, m, reg, logger)
	a.Router.Setup()

	return a, nil
}

// Deliveries builds the senders that reach the real gateways. Disabled channels only log.
func Deliveries(cfg *config.Config, logger zerolog.Logger) outbound.Router {
	breaker := func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:             name,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		})
	}

	var email, sms outbound.Sender = outbound.NewLogSender(logger), outbound.NewLogSender(logger)
	if cfg.SMTP.Enabled {
		email = outbound.WithBreaker(outbound.NewEmailSender(outbound.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}), breaker("smtp"))
	}
	if cfg.SMS.Enabled {
		sms = outbound.WithBreaker(outbound.NewSMSSender(outbound.SMSConfig{
			WebhookURL: cfg.SMS.WebhookURL,
			From:       cfg.SMS.From,
			Timeout:    cfg.SMS.Timeout,
		}), breaker("sms-gateway"))
	}

	return outbound.Router{
		outbound.ChannelEmail: email,
		outbound.ChannelSMS:   sms,
	}
}
