package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/riandyrn/otelchi"
	"github.com/salinamaris/crmsync/activecampaign"
	"github.com/salinamaris/crmsync/catalog"
	"github.com/salinamaris/crmsync/checkout"
	"github.com/salinamaris/crmsync/handler"
	"github.com/salinamaris/crmsync/mail"
	"github.com/salinamaris/crmsync/postgres"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {

	// Local development overrides; ignored when the file is absent.
	_ = godotenv.Load()

	log, err := newLog("crmsync-api")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := run("crmsync-api", log); err != nil {
		log.Errorw("startup", "err", err)
		os.Exit(1)
	}
}

func run(serverName string, log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		Http struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			Host            string        `conf:"default:0.0.0.0:3000"`
			PublicURL       string        `conf:"default:https://salina.maris.ch"`
		}
		DB struct {
			User         string `conf:"default:crmsync"`
			Password     string `conf:"default:crmsync,mask"`
			Host         string `conf:"default:localhost"`
			Name         string `conf:"default:crmsync"`
			MaxIdleConns int    `conf:"default:0"`
			MaxOpenConns int    `conf:"default:0"`
			DisableTLS   bool   `conf:"default:true"`
		}
		CRM struct {
			URL            string `conf:"required"`
			Token          string `conf:"required,mask"`
			ReferenceField string `conf:"default:Reservationsnummer"`
		}
		Stripe struct {
			SecretKey     string `conf:"required,mask"`
			PublicKey     string `conf:"required"`
			WebhookSecret string `conf:"required,mask"`
			ImageBaseURL  string `conf:"default:https://salina.maris.ch/static/"`
		}
		Sendgrid struct {
			APIKey           string `conf:"required,mask"`
			Sender           string `conf:"default:info@salina.maris.ch"`
			InternalTo       string `conf:"default:office@salina.maris.ch"`
			InternalTemplate string `conf:"required"`
			CustomerTemplate string `conf:"required"`
		}
		Catalog struct {
			Path string `conf:"default:gutscheine.json"`
		}
		Jaeger struct {
			ReporterURI string  `conf:"default:http://localhost:14268/api/traces"`
			ServiceName string  `conf:"default:crmsync-api"`
			Probability float64 `conf:"default:0.5"`
		}
	}{}

	help, err := conf.Parse("CRMSYNC", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// Database Support

	log.Infow("startup", "status", "initializing database support", "host", cfg.DB.Host)

	db, err := postgres.Open(postgres.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Infow("shutdown", "status", "stopping database support", "host", cfg.DB.Host)
		db.Close()
	}()

	log.Infow("startup", "status", "updating database schema", "database", cfg.DB.Name, "host", cfg.DB.Host)

	if err := postgres.Migrate(context.Background(), db); err != nil {
		return fmt.Errorf("updating database schema: %w", err)
	}

	// =========================================================================
	// Product Catalog

	log.Infow("startup", "status", "loading product catalog", "path", cfg.Catalog.Path)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// =========================================================================
	// Start Tracing Support

	log.Infow("startup", "status", "initializing OT/Jaeger tracing support")

	traceProvider, err := startTracing(
		cfg.Jaeger.ServiceName,
		cfg.Jaeger.ReporterURI,
	)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer traceProvider.Shutdown(context.Background())

	// =========================================================================
	// Create router

	log.Infow("startup", "status", "initializing router")

	otelLog := otelzap.New(log.Desugar(), otelzap.WithStackTrace(true)).Sugar().SugaredLogger

	crm := activecampaign.NewClient(activecampaign.Config{
		URL:            cfg.CRM.URL,
		Token:          cfg.CRM.Token,
		ReferenceField: cfg.CRM.ReferenceField,
	}, otelLog)

	co := checkout.New(checkout.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		PublicKey:     cfg.Stripe.PublicKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		ImageBaseURL:  cfg.Stripe.ImageBaseURL,
	}, cat, otelLog)

	mailer := mail.NewSender(cfg.Sendgrid.APIKey, cfg.Sendgrid.Sender)
	orders := postgres.NewOrderStore(db)

	contactHandler := handler.NewContactHandler(crm, otelLog)
	dealHandler := handler.NewDealHandler(crm, otelLog)
	paymentHandler := handler.NewPaymentHandler(co, cat, orders, mailer, handler.PaymentConfig{
		PublicURL:        cfg.Http.PublicURL,
		InternalTo:       cfg.Sendgrid.InternalTo,
		InternalTemplate: cfg.Sendgrid.InternalTemplate,
		CustomerTemplate: cfg.Sendgrid.CustomerTemplate,
	}, otelLog)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(otelchi.Middleware(serverName, otelchi.WithChiRoutes(r)))

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", contactHandler.Sync)
	})
	r.Route("/deals", func(r chi.Router) {
		r.Post("/", dealHandler.Create)
		r.Put("/{ref}", dealHandler.Update)
	})
	r.Route("/payment", func(r chi.Router) {
		r.Get("/products", paymentHandler.Products)
		r.Get("/stripe_pay", paymentHandler.StripePay)
		r.Post("/stripe_webhook", paymentHandler.StripeWebhook)
	})

	// =========================================================================
	// Start API Server

	log.Infow("startup", "status", "initializing http server")

	server := &http.Server{
		Addr:         cfg.Http.Host,
		Handler:      r,
		ReadTimeout:  cfg.Http.ReadTimeout,
		WriteTimeout: cfg.Http.WriteTimeout,
		IdleTimeout:  cfg.Http.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, cancel := context.WithTimeout(serverCtx, cfg.Http.ShutdownTimeout)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}

	<-serverCtx.Done()

	return nil
}

func newLog(serviceName string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

func startTracing(serviceName, reporterURL string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(reporterURL)))
	if err != nil {
		return nil, fmt.Errorf("creating new exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		// Always be sure to batch in production.
		tracesdk.WithBatcher(exp,
			tracesdk.WithMaxExportBatchSize(tracesdk.DefaultMaxExportBatchSize),
			tracesdk.WithBatchTimeout(tracesdk.DefaultScheduleDelay*time.Millisecond),
		),
		// Record information about this application in a Resource.
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("exporter", "jaeger"),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}
