package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-transactions/app/client"
	"github.com/vibast-solutions/ms-go-transactions/app/controller"
	"github.com/vibast-solutions/ms-go-transactions/app/event"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
	transactionsgrpc "github.com/vibast-solutions/ms-go-transactions/app/grpc"
	"github.com/vibast-solutions/ms-go-transactions/app/metrics"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
	"github.com/vibast-solutions/ms-go-transactions/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the transactions service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, transactionService, serviceMetrics, cleanup := mustCreateTransactionService()
	defer cleanup()

	transactionController := controller.NewTransactionController(transactionService)
	grpcTransactionServer := transactionsgrpc.NewServer(transactionService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(transactionController, serviceMetrics, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, grpcTransactionServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

// setupHTTPServer exposes the bank callback and /metrics without internal
// auth; every other route requires x-request-id and an internal caller.
func setupHTTPServer(
	transactionController *controller.TransactionController,
	serviceMetrics *metrics.Metrics,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/metrics", echo.WrapHandler(serviceMetrics.Handler()))

	callbacks := e.Group("/callbacks")
	callbacks.GET("/:gate/:token", transactionController.HandleCallback)
	callbacks.POST("/:gate/:token", transactionController.HandleCallback)

	protected := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(appServiceName),
	}

	e.GET("/health", transactionController.Health, protected...)

	transactions := e.Group("/transactions", protected...)
	transactions.POST("", transactionController.InitiateTransaction)
	transactions.GET("", transactionController.ListTransactions)
	transactions.GET("/:id", transactionController.GetTransaction)
	transactions.GET("/:id/logs", transactionController.ListTransactionLogs)
	transactions.GET("/:id/inquiries", transactionController.ListTransactionInquiries)
	transactions.PATCH("/:id/note", transactionController.UpdateNote)

	inquiries := e.Group("/inquiries", protected...)
	inquiries.POST("/:id/process", transactionController.ProcessInquiry)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	transactionServer *transactionsgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			transactionsgrpc.RecoveryInterceptor(),
			transactionsgrpc.RequestIDInterceptor(),
			transactionsgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	transactionsgrpc.RegisterTransactionsServiceServer(grpcSrv, transactionServer)

	return grpcSrv, lis
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustCreateTransactionService() (*config.Config, *service.TransactionService, *metrics.Metrics, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)

	sessionRepo := repository.NewTransactionSessionRepository(db)
	logRepo := repository.NewTransactionLogRepository(db)
	inquiryRepo := repository.NewTransactionInquiryRepository(db)

	amountUnit, err := gate.ParseAmountUnit(cfg.Gateway.AmountUnit)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid gateway amount unit")
	}
	restGate := gate.NewRESTGate(gate.RESTConfig{
		Code:                      cfg.Gateway.Code,
		BaseURL:                   cfg.Gateway.BaseURL,
		MerchantID:                cfg.Gateway.MerchantID,
		Secret:                    cfg.Gateway.Secret,
		AmountUnit:                amountUnit,
		SignatureToleranceSeconds: cfg.Gateway.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Gateway.HTTPTimeout,
	})
	gateRegistry := gate.NewRegistry(restGate)

	serviceMetrics := metrics.New()
	sinks := []event.Sink{event.NewLogSink(factory.NewModuleLogger("transactions-events"))}

	var kafkaSink *event.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink = event.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, kafkaSink)
	}
	if strings.TrimSpace(cfg.Webhook.EventsURL) != "" {
		sinks = append(sinks, event.NewWebhookSink(cfg.Webhook.EventsURL, cfg.App.APIKey, cfg.Webhook.HTTPTimeout))
	}

	opts := []service.Option{
		service.WithEventSink(event.NewMultiSink(sinks...)),
		service.WithMetrics(serviceMetrics),
	}
	if strings.TrimSpace(cfg.Orders.LookupURL) != "" {
		opts = append(opts, service.WithOrderLookup(client.NewOrdersClient(cfg.Orders.LookupURL, cfg.App.APIKey, cfg.Orders.HTTPTimeout)))
	}

	transactionService := service.NewTransactionService(
		sessionRepo,
		logRepo,
		inquiryRepo,
		gateRegistry,
		gate.NewPathCallbackURLBuilder(cfg.Gateway.CallbackBaseURL),
		cfg.Transactions,
		opts...,
	)

	cleanup := func() {
		if kafkaSink != nil {
			if err := kafkaSink.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close kafka writer")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, transactionService, serviceMetrics, cleanup
}
