package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/flasharb/contract"
	"github.com/michaelpento.lv/flasharb/simulator"
	"go.uber.org/zap"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	methodSendBundle = "eth_sendBundle"
	methodCallBundle = "eth_callBundle"

	DefaultRelay = "https://relay.flashbots.net"
)

// BlockNumberer reports the current chain head.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client sends signed bundles to a Flashbots-compatible relay. The auth key
// only identifies the searcher; it never holds funds.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	chain      BlockNumberer
	blocks     int
	logger     *zap.Logger
}

// NewClient creates a client that targets each transaction at the next
// blocks blocks.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, chain BlockNumberer, blocks int, logger *zap.Logger) *Client {
	if blocks <= 0 {
		blocks = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		chain:      chain,
		blocks:     blocks,
		logger:     logger,
	}
}

// Bundle is an ordered list of signed transactions for one target block.
type Bundle struct {
	Txs         []*types.Transaction
	BlockNumber uint64
}

func (b *Bundle) encodeTxs() ([]string, error) {
	txs := make([]string, len(b.Txs))
	for i, tx := range b.Txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode tx %s: %w", tx.Hash().Hex(), err)
		}
		txs[i] = hexutil.Encode(raw)
	}
	return txs, nil
}

// BundleSimulation is the relay's view of a bundle executed on top of a block.
type BundleSimulation struct {
	Success  bool
	Error    string
	Revert   string
	GasUsed  uint64
	Coinbase *big.Int
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Sign returns the X-Flashbots-Signature header value for payload.
func Sign(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		key,
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(key.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	header, err := Sign(payload, c.authSigner)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flashbots request failed: %s: %s", resp.Status, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("flashbots %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendBundle submits bundle and returns the relay's bundle hash.
func (c *Client) SendBundle(ctx context.Context, bundle *Bundle) (common.Hash, error) {
	txs, err := bundle.encodeTxs()
	if err != nil {
		return common.Hash{}, err
	}

	var result struct {
		BundleHash common.Hash `json:"bundleHash"`
	}
	err = c.call(ctx, methodSendBundle, map[string]interface{}{
		"txs":         txs,
		"blockNumber": hexutil.EncodeUint64(bundle.BlockNumber),
	}, &result)
	if err != nil {
		return common.Hash{}, err
	}
	return result.BundleHash, nil
}

// SimulateBundle executes bundle on top of the state after its parent block.
func (c *Client) SimulateBundle(ctx context.Context, bundle *Bundle) (*BundleSimulation, error) {
	txs, err := bundle.encodeTxs()
	if err != nil {
		return nil, err
	}

	var result struct {
		CoinbaseDiff string `json:"coinbaseDiff"`
		TotalGasUsed uint64 `json:"totalGasUsed"`
		Results      []struct {
			Error  string `json:"error"`
			Revert string `json:"revert"`
		} `json:"results"`
	}
	err = c.call(ctx, methodCallBundle, map[string]interface{}{
		"txs":              txs,
		"blockNumber":      hexutil.EncodeUint64(bundle.BlockNumber),
		"stateBlockNumber": "latest",
	}, &result)
	if err != nil {
		return nil, err
	}

	sim := &BundleSimulation{Success: true, GasUsed: result.TotalGasUsed}
	if v, ok := new(big.Int).SetString(result.CoinbaseDiff, 10); ok {
		sim.Coinbase = v
	}
	for _, r := range result.Results {
		if r.Error != "" {
			sim.Success = false
			sim.Error = r.Error
			sim.Revert = r.Revert
			break
		}
	}
	return sim, nil
}

// Submit sends tx as a single-transaction bundle for each of the next blocks.
// It succeeds when at least one relay submission is accepted.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) error {
	head, err := c.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	var lastErr error
	accepted := 0
	for i := 1; i <= c.blocks; i++ {
		target := head + uint64(i)
		hash, err := c.SendBundle(ctx, &Bundle{Txs: []*types.Transaction{tx}, BlockNumber: target})
		if err != nil {
			c.logger.Warn("Bundle rejected",
				zap.Uint64("block", target),
				zap.String("tx", tx.Hash().Hex()),
				zap.Error(err))
			lastErr = err
			continue
		}
		accepted++
		c.logger.Debug("Bundle submitted",
			zap.Uint64("block", target),
			zap.String("bundle", hash.Hex()),
			zap.String("tx", tx.Hash().Hex()))
	}
	if accepted == 0 {
		return fmt.Errorf("no bundle accepted: %w", lastErr)
	}
	return nil
}

// PreflightTx simulates tx as a one-transaction bundle for the next block.
// A revert is reported in the result; relay failures are returned as errors.
func (c *Client) PreflightTx(ctx context.Context, tx *types.Transaction) (*simulator.SimulationResult, error) {
	head, err := c.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	sim, err := c.SimulateBundle(ctx, &Bundle{Txs: []*types.Transaction{tx}, BlockNumber: head + 1})
	if err != nil {
		return nil, fmt.Errorf("failed to simulate bundle: %w", err)
	}

	res := &simulator.SimulationResult{Success: sim.Success, GasUsed: sim.GasUsed}
	if !sim.Success {
		res.Reason = contract.BundleRevertReason(sim.Error, sim.Revert)
		c.logger.Debug("Bundle simulation reverted",
			zap.String("tx", tx.Hash().Hex()),
			zap.String("reason", res.Reason))
	}
	return res, nil
}
