package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/langell/chainOverflow/pkg/gate"
	"github.com/langell/chainOverflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// challengeServer answers the first request with a 402 and accepts any
// retry whose credential carries the issued macaroon.
func challengeServer(t *testing.T) (*httptest.Server, *[]string) {
	var (
		mu     sync.Mutex
		bodies []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()

		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.Header().Set("WWW-Authenticate", `L402 macaroon="mac_test", invoice="eth_payment_needed"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(types.ChallengeBody{
				Message:      "Payment Required (Smart Contract)",
				PayTo:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				VaultAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
				Method:       "payForQuestion",
				Price:        "100000000000000",
				Macaroon:     "mac_test",
			})
			return
		}

		cred, err := gate.ParseAuthorization(auth)
		if err != nil || cred.Macaroon != "mac_test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(cred.Proof))
	}))
	t.Cleanup(srv.Close)

	return srv, &bodies
}

type fakeSender struct {
	to     common.Address
	value  *big.Int
	status uint64
	err    error
}

func (f *fakeSender) SendValue(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.to, f.value = to, value
	return common.HexToHash("0xfeed"), nil
}

func (f *fakeSender) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: hash, Status: f.status}, nil
}

func TestDoPaysAndRetries(t *testing.T) {
	srv, bodies := challengeServer(t)
	c := NewPayingClient(PreimagePayer{}, nil)

	resp, err := c.PostJSON(context.Background(), srv.URL+"/api/questions", map[string]string{"title": "t"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	proof, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(proof), "preimage_"))

	// The body is replayed on the paid retry
	require.Len(t, *bodies, 2)
	assert.Equal(t, (*bodies)[0], (*bodies)[1])
	assert.JSONEq(t, `{"title":"t"}`, (*bodies)[1])
}

func TestDoWithoutChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewPayingClient(PreimagePayer{}, nil)
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoRejectionWithoutMacaroon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"Invalid payment proof"}`))
	}))
	defer srv.Close()

	c := NewPayingClient(PreimagePayer{}, nil)
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMacaroon))
	assert.Contains(t, err.Error(), "Invalid payment proof")
}

func TestParseChallengeHeaderFallback(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Www-Authenticate": []string{`L402 macaroon="mac_hdr", invoice="eth_payment_needed"`}},
		Body:   io.NopCloser(strings.NewReader(`{"price":"1","payTo":"0x0"}`)),
	}

	c, err := parseChallenge(resp)
	require.NoError(t, err)
	assert.Equal(t, "mac_hdr", c.Macaroon)
}

func TestChainPayerPrefersVault(t *testing.T) {
	sender := &fakeSender{status: 1}
	p := NewChainPayer(sender, time.Second)

	proof, err := p.Pay(context.Background(), types.ChallengeBody{
		PayTo:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		VaultAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Price:        "100000000000000",
	})
	require.NoError(t, err)

	assert.Equal(t, common.HexToHash("0xfeed").Hex(), proof)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), sender.to)
	assert.Equal(t, 0, sender.value.Cmp(big.NewInt(100000000000000)))
}

func TestChainPayerFallsBackToPayTo(t *testing.T) {
	sender := &fakeSender{status: 1}
	p := NewChainPayer(sender, time.Second)

	_, err := p.Pay(context.Background(), types.ChallengeBody{
		PayTo: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Price: "5",
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), sender.to)
}

func TestChainPayerErrors(t *testing.T) {
	tests := []struct {
		name      string
		sender    *fakeSender
		challenge types.ChallengeBody
	}{
		{"bad price", &fakeSender{status: 1}, types.ChallengeBody{PayTo: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Price: "lots"}},
		{"bad address", &fakeSender{status: 1}, types.ChallengeBody{PayTo: "nowhere", Price: "1"}},
		{"send fails", &fakeSender{err: errors.New("insufficient funds")}, types.ChallengeBody{PayTo: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Price: "1"}},
		{"reverted", &fakeSender{status: 0}, types.ChallengeBody{PayTo: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Price: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChainPayer(tt.sender, time.Second).Pay(context.Background(), tt.challenge)
			assert.Error(t, err)
		})
	}
}
