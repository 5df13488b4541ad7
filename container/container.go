package container

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"aetherlock-backend/ai"
	"aetherlock-backend/handlers"
	"aetherlock-backend/ipfs"
	"aetherlock-backend/services"
	"aetherlock-backend/signer"
	"aetherlock-backend/solana"
	"aetherlock-backend/zetachain"
)

// Config carries the environment-driven settings for the backend.
type Config struct {
	Port             string
	RPCURL           string
	ProgramID        string
	Treasury         string
	FeePercent       int
	DisputeWindow    time.Duration
	IPFSAPIURL       string
	MaxEvidenceBytes int
	AIEndpoint       string
	AIModel          string
	AITimeout        time.Duration
	OperatorKey      string
	GatewayDriver    string
	PGDSN            string
}

// LoadConfig reads configuration from the environment with sane defaults.
func LoadConfig() Config {
	disputeHours := 48
	if raw := os.Getenv("DISPUTE_WINDOW_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			disputeHours = v
		}
	}

	feePercent := 2
	if raw := os.Getenv("ESCROW_FEE_PERCENT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			feePercent = v
		}
	}

	maxEvidence := 0
	if raw := os.Getenv("MAX_EVIDENCE_BYTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxEvidence = v
		}
	}

	aiTimeout := 60 * time.Second
	if raw := os.Getenv("AI_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			aiTimeout = time.Duration(v) * time.Second
		}
	}

	return Config{
		Port:             envDefault("PORT", "3001"),
		RPCURL:           envDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		ProgramID:        os.Getenv("ESCROW_PROGRAM_ID"),
		Treasury:         os.Getenv("TREASURY_ADDRESS"),
		FeePercent:       feePercent,
		DisputeWindow:    time.Duration(disputeHours) * time.Hour,
		IPFSAPIURL:       envDefault("IPFS_API_URL", "http://127.0.0.1:5001"),
		MaxEvidenceBytes: maxEvidence,
		AIEndpoint:       envDefault("AI_ENDPOINT", "https://api.anthropic.com/v1/messages"),
		AIModel:          envDefault("AI_MODEL", "claude-sonnet-4-20250514"),
		AITimeout:        aiTimeout,
		OperatorKey:      os.Getenv("OPERATOR_PRIVATE_KEY"),
		GatewayDriver:    envDefault("GATEWAY_STORE_DRIVER", "memory"),
		PGDSN:            os.Getenv("GATEWAY_PG_DSN"),
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Container holds all application dependencies
type Container struct {
	// Services
	EscrowService *services.EscrowService
	Orchestrator  *services.VerificationOrchestrator
	QRCodeService *services.QRCodeService
	HealthService *services.HealthService
	Signer        *signer.Signer
	Gateway       *zetachain.Gateway
	GatewayStore  zetachain.Store
	Chain         *solana.Client

	// Handlers
	HealthHandler       *handlers.HealthHandler
	EscrowHandler       *handlers.EscrowHandler
	VerificationHandler *handlers.VerificationHandler
	GatewayHandler      *handlers.GatewayHandler
	KeysHandler         *handlers.KeysHandler
}

// NewContainer creates a new dependency container
func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	agentSigner, err := signer.NewFromEnv()
	if err != nil {
		return nil, err
	}

	programID, err := solana.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ESCROW_PROGRAM_ID")
	}
	treasury, err := solana.ParsePublicKey(cfg.Treasury)
	if err != nil {
		return nil, errors.Wrap(err, "invalid TREASURY_ADDRESS")
	}
	operator, err := solana.OperatorFromBase58(cfg.OperatorKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid OPERATOR_PRIVATE_KEY")
	}

	rpc := solana.NewHTTPRPC(cfg.RPCURL, 30*time.Second)
	chain := solana.NewClient(rpc, solana.Config{
		ProgramID:     programID,
		Treasury:      treasury,
		FeePercent:    cfg.FeePercent,
		DisputeWindow: cfg.DisputeWindow,
	}, operator)

	var gatewayStore zetachain.Store
	switch cfg.GatewayDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			return nil, errors.New("GATEWAY_PG_DSN required when GATEWAY_STORE_DRIVER=postgres")
		}
		gatewayStore, err = zetachain.NewPGStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, errors.Wrap(err, "init gateway store")
		}
	default:
		gatewayStore = zetachain.NewMemoryStore()
	}

	// Initialize services
	ipfsClient := ipfs.NewClient(cfg.IPFSAPIURL, 60*time.Second)
	evidenceStore := ipfs.NewEvidenceStore(ipfsClient, cfg.MaxEvidenceBytes)
	adjudicator := ai.NewAdjudicator(cfg.AIEndpoint, cfg.AIModel, cfg.AITimeout)
	escrowService := services.NewEscrowService(chain)
	orchestrator := services.NewVerificationOrchestrator(evidenceStore, adjudicator, agentSigner, chain)
	qrService := services.NewQRCodeService()
	healthService := services.NewHealthService()
	gateway := zetachain.NewGateway(gatewayStore)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(healthService)
	escrowHandler := handlers.NewEscrowHandler(escrowService, qrService, agentSigner.PublicKeyBase58())
	verificationHandler := handlers.NewVerificationHandler(orchestrator)
	gatewayHandler := handlers.NewGatewayHandler(gateway)
	keysHandler := handlers.NewKeysHandler(agentSigner.PublicKeyBase58())

	return &Container{
		// Services
		EscrowService: escrowService,
		Orchestrator:  orchestrator,
		QRCodeService: qrService,
		HealthService: healthService,
		Signer:        agentSigner,
		Gateway:       gateway,
		GatewayStore:  gatewayStore,
		Chain:         chain,

		// Handlers
		HealthHandler:       healthHandler,
		EscrowHandler:       escrowHandler,
		VerificationHandler: verificationHandler,
		GatewayHandler:      gatewayHandler,
		KeysHandler:         keysHandler,
	}, nil
}

// Close releases container-held resources.
func (c *Container) Close() {
	c.Orchestrator.Close()
	if c.GatewayStore != nil {
		c.GatewayStore.Close()
	}
}
