package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrAccountNotFound is returned when the ledger has no account at the
// requested address. Distinct from transport failures so callers can treat
// "receipt does not exist" as an answer rather than an error.
var ErrAccountNotFound = errors.New("account not found")

// ErrInstructionRejected is returned when the ledger refused a submitted
// instruction. Never converted into a fabricated success.
var ErrInstructionRejected = errors.New("instruction rejected")

// RPCRequest is the JSON-RPC request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
	ID      int    `json:"id"`
}

// RPCResponse is the JSON-RPC response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client provides Solana JSON-RPC client functionality.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a new ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Call makes an RPC call to the ledger node.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// accountInfoResult mirrors the getAccountInfo response shape.
type accountInfoResult struct {
	Value *struct {
		Data     []string `json:"data"` // [payload, encoding]
		Lamports uint64   `json:"lamports"`
		Owner    string   `json:"owner"`
	} `json:"value"`
}

// GetAccountInfo fetches the raw data bytes of an account. Returns
// ErrAccountNotFound when no account exists at the address.
func (c *Client) GetAccountInfo(ctx context.Context, addr Address) ([]byte, error) {
	result, err := c.Call(ctx, "getAccountInfo", []any{
		addr.String(),
		map[string]any{"encoding": "base64"},
	})
	if err != nil {
		return nil, err
	}

	var info accountInfoResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unmarshal account info: %w", err)
	}
	if info.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if len(info.Value.Data) == 0 {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(info.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// GetBalance returns an account's lamport balance. A missing account has a
// zero balance.
func (c *Client) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	result, err := c.Call(ctx, "getBalance", []any{addr.String()})
	if err != nil {
		return 0, err
	}

	var out struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("unmarshal balance: %w", err)
	}
	return out.Value, nil
}

// GetSlot returns the current ledger slot.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getSlot", nil)
	if err != nil {
		return 0, err
	}

	var slot uint64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("unmarshal slot: %w", err)
	}
	return slot, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	result, err := c.Call(ctx, "getLatestBlockhash", nil)
	if err != nil {
		return [32]byte{}, err
	}

	var out struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return [32]byte{}, fmt.Errorf("unmarshal blockhash: %w", err)
	}

	hash, err := ParseAddress(out.Value.Blockhash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("parse blockhash: %w", err)
	}
	return [32]byte(hash), nil
}

// SendTransaction submits a signed transaction and returns its signature.
// A node-side rejection (preflight failure) maps to ErrInstructionRejected.
func (c *Client) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	result, err := c.Call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]any{"encoding": "base64"},
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %s", ErrInstructionRejected, rpcErr.Message)
		}
		return "", err
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", fmt.Errorf("unmarshal signature: %w", err)
	}
	return signature, nil
}

// SignatureStatus describes the confirmation progress of a transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Confirmed reports whether the transaction reached at least the confirmed
// commitment level without an execution error.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Failed() {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// Failed reports whether the transaction executed and errored.
func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

// GetSignatureStatuses returns the status of each signature, nil for
// signatures the node has not seen.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	result, err := c.Call(ctx, "getSignatureStatuses", []any{signatures})
	if err != nil {
		return nil, err
	}

	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal signature statuses: %w", err)
	}
	return out.Value, nil
}
