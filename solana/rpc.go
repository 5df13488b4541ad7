package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aetherlock-backend/core/escrow"
)

// RPC is the subset of the chain node API the escrow client needs. The
// concrete implementation is injected so tests can drive the client against
// a double.
type RPC interface {
	GetAccountInfo(ctx context.Context, address string) ([]byte, bool, error)
	GetLatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
}

// HTTPRPC reaches a chain node over JSON-RPC.
type HTTPRPC struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRPC creates a JSON-RPC client for the given node endpoint.
func NewHTTPRPC(endpoint string, timeout time.Duration) *HTTPRPC {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRPC{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *HTTPRPC) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return escrow.ChainRPCError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return escrow.ChainRPCError{Method: method, Err: fmt.Errorf("node returned %s", resp.Status)}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return escrow.ChainRPCError{Method: method, Err: err}
	}
	if envelope.Error != nil {
		return escrow.ChainRPCError{Method: method, Err: envelope.Error}
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return escrow.ChainRPCError{Method: method, Err: err}
		}
	}
	return nil
}

// GetAccountInfo fetches an account's raw data. The second return is false
// when the account does not exist.
func (c *HTTPRPC) GetAccountInfo(ctx context.Context, address string) ([]byte, bool, error) {
	var result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	params := []interface{}{address, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, false, err
	}
	if result.Value == nil {
		return nil, false, nil
	}
	if len(result.Value.Data) == 0 {
		return nil, true, nil
	}
	raw, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, false, escrow.ChainRPCError{Method: "getAccountInfo", Err: err}
	}
	return raw, true, nil
}

// GetLatestBlockhash fetches the recent blockhash needed to build a
// transaction.
func (c *HTTPRPC) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var blockhash [32]byte
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return blockhash, err
	}
	pk, err := ParsePublicKey(result.Value.Blockhash)
	if err != nil {
		return blockhash, escrow.ChainRPCError{Method: "getLatestBlockhash", Err: err}
	}
	copy(blockhash[:], pk[:])
	return blockhash, nil
}

// SendTransaction submits a base64-serialized signed transaction and returns
// its signature.
func (c *HTTPRPC) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	var signature string
	params := []interface{}{txBase64, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
