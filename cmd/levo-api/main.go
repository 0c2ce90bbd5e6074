// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"levo/internal/config"
	"levo/internal/gateway"
	httptransport "levo/internal/http"
	"levo/internal/infra"
	"levo/internal/maps"
	"levo/internal/modules/account"
	"levo/internal/modules/location"
	"levo/internal/modules/order"
	"levo/internal/modules/payment"
	"levo/internal/modules/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("postgres init: %v", err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	geocoder, err := maps.NewGeocodeService(cfg.Maps.APIKey)
	if err != nil {
		log.Fatalf("maps init: %v", err)
	}

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)

	pricingSvc := pricing.NewService(nil, cfg.Pricing.FeePercent)

	orderStore := order.NewPgStore(dbPool)
	orderSvc := order.NewService(orderStore, pricingSvc, logger)

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(locationStore, cfg.Dispatch.RadiusKm)

	accountStore := account.NewPgStore(dbPool)
	paymentStore := payment.NewPgStore(dbPool)
	paymentSvc := payment.NewService(paymentStore, accountStore, gatewayClient, orderSvc, logger)
	reconciler := payment.NewReconciler(paymentStore, accountStore, orderSvc, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:         orderSvc,
		Payment:       paymentSvc,
		Pricing:       pricingSvc,
		Location:      locationSvc,
		Geocoder:      geocoder,
		Reconciler:    reconciler,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Verifier:      verifier,
		Log:           logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
