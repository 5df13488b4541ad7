package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"aetherlock-backend/container"
	"aetherlock-backend/mcp"
)

func main() {
	_ = godotenv.Load()

	cfg := container.LoadConfig()

	c, err := container.NewContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	mcpServer := mcp.NewMCPServer(c.EscrowService, c.Orchestrator, c.Signer.PublicKeyBase58())

	log.Printf("AetherLock MCP server starting")

	// Serve over stdio transport
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
