// Package client implements an HTTP client that answers L402 challenges by
// paying and retrying.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/langell/chainOverflow/pkg/gate"
	"github.com/langell/chainOverflow/pkg/types"
	"go.uber.org/zap"
)

// ErrNoMacaroon is returned when a 402 carries no macaroon to pay against
var ErrNoMacaroon = errors.New("payment challenge has no macaroon")

var macaroonPattern = regexp.MustCompile(`macaroon="([^"]+)"`)

// Payer settles a challenge and returns the proof to present
type Payer interface {
	Pay(ctx context.Context, challenge types.ChallengeBody) (string, error)
}

// PayingClient is an HTTP client that automatically handles L402 payments
type PayingClient struct {
	client *http.Client
	payer  Payer
	log    *zap.SugaredLogger
}

// NewPayingClient creates a new client with payment capabilities
func NewPayingClient(payer Payer, log *zap.SugaredLogger) *PayingClient {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PayingClient{
		client: &http.Client{Timeout: 2 * time.Minute},
		payer:  payer,
		log:    log,
	}
}

// WithHTTPClient replaces the underlying transport client
func (c *PayingClient) WithHTTPClient(hc *http.Client) *PayingClient {
	c.client = hc
	return c
}

// Get performs a GET request with automatic payment handling
func (c *PayingClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON marshals v and posts it with automatic payment handling
func (c *PayingClient) PostJSON(ctx context.Context, url string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// Do executes an HTTP request with automatic payment handling. A request is
// paid for at most once.
func (c *PayingClient) Do(req *http.Request) (*http.Response, error) {
	// Buffer the body so it can be sent twice
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	// First, try the request without payment
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	// If not 402, return response
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := parseChallenge(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment challenge: %w", err)
	}

	c.log.Infow("payment required", "url", req.URL.String(), "method", challenge.Method, "price", challenge.Price, "payTo", challenge.PayTo)

	proof, err := c.payer.Pay(req.Context(), challenge)
	if err != nil {
		return nil, fmt.Errorf("failed to pay: %w", err)
	}

	// Retry with the credential
	retryReq := req.Clone(req.Context())
	if body != nil {
		retryReq.Body = io.NopCloser(bytes.NewReader(body))
	}
	retryReq.Header.Set("Authorization", gate.FormatAuthorization(types.PaymentCredential{
		Macaroon: challenge.Macaroon,
		Proof:    proof,
	}))

	return c.client.Do(retryReq)
}

// parseChallenge reads the challenge body of a 402 response. The macaroon
// falls back to the WWW-Authenticate header.
func parseChallenge(resp *http.Response) (types.ChallengeBody, error) {
	defer resp.Body.Close()

	var challenge types.ChallengeBody
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return challenge, err
	}

	if err := json.Unmarshal(data, &challenge); err != nil {
		return challenge, err
	}

	if challenge.Macaroon == "" {
		if m := macaroonPattern.FindStringSubmatch(resp.Header.Get("WWW-Authenticate")); m != nil {
			challenge.Macaroon = m[1]
		}
	}

	if challenge.Macaroon == "" {
		var rejected gate.ErrorBody
		if json.Unmarshal(data, &rejected) == nil && rejected.Error != "" {
			return challenge, fmt.Errorf("%w: %s", ErrNoMacaroon, rejected.Error)
		}
		return challenge, ErrNoMacaroon
	}

	return challenge, nil
}

// =============================================================================

// Sender is the part of the chain provider ChainPayer needs
type Sender interface {
	SendValue(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*evm.Receipt, error)
}

// ChainPayer pays challenges with a native transfer and presents the
// transaction hash as proof.
type ChainPayer struct {
	sender  Sender
	timeout time.Duration
}

// NewChainPayer creates a payer that waits up to timeout for its transfer
// to be mined.
func NewChainPayer(sender Sender, timeout time.Duration) *ChainPayer {
	return &ChainPayer{sender: sender, timeout: timeout}
}

// Pay implements Payer. The vault is preferred over payTo when both are
// offered.
func (p *ChainPayer) Pay(ctx context.Context, challenge types.ChallengeBody) (string, error) {
	price, ok := new(big.Int).SetString(challenge.Price, 10)
	if !ok || price.Sign() < 0 {
		return "", fmt.Errorf("invalid price %q", challenge.Price)
	}

	dest := challenge.VaultAddress
	if dest == "" {
		dest = challenge.PayTo
	}
	if !common.IsHexAddress(dest) {
		return "", fmt.Errorf("invalid payment address %q", dest)
	}

	hash, err := p.sender.SendValue(ctx, common.HexToAddress(dest), price)
	if err != nil {
		return "", err
	}

	receipt, err := p.sender.WaitForReceipt(ctx, hash, p.timeout)
	if err != nil {
		return "", fmt.Errorf("payment %s not mined: %w", hash.Hex(), err)
	}
	if !receipt.Successful() {
		return "", fmt.Errorf("payment %s reverted", hash.Hex())
	}

	return hash.Hex(), nil
}

// PreimagePayer answers challenges with a random preimage. It only satisfies
// servers running the legacy check.
type PreimagePayer struct{}

// Pay implements Payer
func (PreimagePayer) Pay(ctx context.Context, challenge types.ChallengeBody) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "preimage_" + id.String(), nil
}
