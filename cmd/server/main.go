package main

import (
	"context"
	"net/http"
	"os"

	webAdapter "tiletrack/internal/adapters/web"
	"tiletrack/internal/app"
	"tiletrack/internal/core"
	"tiletrack/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	seq := core.NewSequenceService(pool)
	svc := app.NewAppService(app.Services{
		Tiles:           core.NewTileService(pool, seq),
		Purchases:       core.NewPurchaseService(pool, seq),
		Pallets:         core.NewPalletService(pool),
		Containers:      core.NewContainerService(pool),
		Dispatches:      core.NewDispatchService(pool, seq),
		Bookings:        core.NewBookingService(pool, seq),
		BookingDispatch: core.NewBookingDispatchService(pool, seq),
		Reconcile:       core.NewReconcileService(pool, log),
	})

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, log, allowedOrigins)

	log.Infof("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
