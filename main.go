package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"aetherlock-backend/container"
	"aetherlock-backend/metrics"
	"aetherlock-backend/middleware"
)

func main() {
	// .env is optional; real deployments configure through the environment
	_ = godotenv.Load()

	cfg := container.LoadConfig()

	c, err := container.NewContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	mux := http.NewServeMux()

	// Apply middleware to all routes
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				middleware.SecurityHeaders(
					middleware.Timeout(120 * time.Second)(
						setupRoutes(mux, c),
					),
				),
			),
		),
	)

	log.Printf("Server starting on :%s", cfg.Port)
	log.Printf("Escrow API at: http://localhost:%s/api/escrow/", cfg.Port)
	log.Printf("Verification API at: http://localhost:%s/api/verification/", cfg.Port)
	log.Printf("Gateway callbacks at: http://localhost:%s/api/gateway/callback", cfg.Port)

	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

func setupRoutes(mux *http.ServeMux, c *container.Container) http.Handler {
	// Health endpoints
	mux.HandleFunc("/api/health", c.HealthHandler.HandleHealth)

	// Escrow lifecycle endpoints
	mux.HandleFunc("/api/escrow/create", c.EscrowHandler.HandleCreate)
	mux.HandleFunc("/api/escrow/", c.EscrowHandler.HandleEscrow)

	// Verification pipeline endpoints
	mux.HandleFunc("/api/verification/verify", c.VerificationHandler.HandleVerify)
	mux.HandleFunc("/api/verification/status/", c.VerificationHandler.HandleStatus)
	mux.HandleFunc("/api/verification/cancel/", c.VerificationHandler.HandleCancel)

	// Cross-chain gateway callbacks
	mux.HandleFunc("/api/gateway/callback", c.GatewayHandler.HandleCallback)

	// Oracle signing identity
	mux.HandleFunc("/api/keys/public", c.KeysHandler.HandlePublicKey)

	// Prometheus metrics
	mux.Handle("/metrics", metrics.Handler())

	return mux
}
