package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"aetherlock-backend/core/escrow"
	"aetherlock-backend/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the mcp-go server with our business logic
type MCPServer struct {
	mcpServer     *server.MCPServer
	escrowService *services.EscrowService
	orchestrator  *services.VerificationOrchestrator
	agentPubkey   string
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(escrowService *services.EscrowService, orchestrator *services.VerificationOrchestrator, agentPubkey string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"AetherLock MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer:     mcpServer,
		escrowService: escrowService,
		orchestrator:  orchestrator,
		agentPubkey:   agentPubkey,
	}

	// Register all tools
	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	s.registerGetEscrowStatusTool()
	s.registerVerifyTaskTool()
	s.registerVerificationStatusTool()
	s.registerGetAgentPubkeyTool()
}

// registerGetEscrowStatusTool creates a tool for reading on-chain escrow state
func (s *MCPServer) registerGetEscrowStatusTool() {
	tool := mcp.NewTool("get_escrow_status",
		mcp.WithDescription("Fetch the current on-chain state of an escrow"),
		mcp.WithString("escrow_id", mcp.Required(), mcp.Description("Hex-encoded escrow identifier")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		rawID, _ := args["escrow_id"].(string)
		if rawID == "" {
			return mcp.NewToolResultError("escrow_id is required"), nil
		}

		esc, err := s.escrowService.Get(ctx, rawID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get escrow: %v", err)), nil
		}

		out, err := json.MarshalIndent(esc, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode escrow: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Escrow state:\n\n%s", out)), nil
	})
}

// registerVerifyTaskTool creates a tool that runs the verification pipeline
func (s *MCPServer) registerVerifyTaskTool() {
	tool := mcp.NewTool("verify_task",
		mcp.WithDescription("Run AI verification for an escrow: upload evidence, adjudicate, sign and submit the attestation on-chain"),
		mcp.WithString("escrow_id", mcp.Required(), mcp.Description("Hex-encoded escrow identifier")),
		mcp.WithString("task_description", mcp.Required(), mcp.Description("The task the evidence must satisfy")),
		mcp.WithString("evidence_name", mcp.Required(), mcp.Description("Filename of the evidence payload")),
		mcp.WithString("evidence_base64", mcp.Required(), mcp.Description("Base64-encoded evidence payload")),
		mcp.WithString("evidence_mime_type", mcp.Description("MIME type of the evidence payload")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		rawID, _ := args["escrow_id"].(string)
		id, err := escrow.ParseID(rawID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid escrow_id: %v", err)), nil
		}

		taskDescription, _ := args["task_description"].(string)
		if taskDescription == "" {
			return mcp.NewToolResultError("task_description is required"), nil
		}

		name, _ := args["evidence_name"].(string)
		encoded, _ := args["evidence_base64"].(string)
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid evidence_base64: %v", err)), nil
		}
		mimeType, _ := args["evidence_mime_type"].(string)

		record, err := s.orchestrator.Verify(ctx, id, taskDescription, []escrow.EvidenceFile{
			{Name: name, MimeType: mimeType, Bytes: payload},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Verification failed: %v", err)), nil
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode record: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Verification completed:\n\n%s", out)), nil
	})
}

// registerVerificationStatusTool creates a tool for verification run status
func (s *MCPServer) registerVerificationStatusTool() {
	tool := mcp.NewTool("get_verification_status",
		mcp.WithDescription("Report the live or most recent verification run for an escrow"),
		mcp.WithString("escrow_id", mcp.Required(), mcp.Description("Hex-encoded escrow identifier")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		rawID, _ := args["escrow_id"].(string)
		id, err := escrow.ParseID(rawID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid escrow_id: %v", err)), nil
		}

		record, err := s.orchestrator.Status(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode record: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Verification status:\n\n%s", out)), nil
	})
}

// registerGetAgentPubkeyTool creates a tool exposing the oracle signing key
func (s *MCPServer) registerGetAgentPubkeyTool() {
	tool := mcp.NewTool("get_agent_pubkey",
		mcp.WithDescription("Return the AI agent's attestation signing public key (base58)"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(s.agentPubkey), nil
	})
}
