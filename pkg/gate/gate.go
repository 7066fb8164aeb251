// Package gate decides whether a request to a paid route may proceed. It
// knows nothing about HTTP frameworks: callers describe the request with a
// Request value and act on the returned Decision.
package gate

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/ledger"
	"github.com/langell/chainOverflow/pkg/metrics"
	"github.com/langell/chainOverflow/pkg/types"
	"github.com/langell/chainOverflow/pkg/verifier"
	"go.uber.org/zap"
)

// Reasons produced by the gate itself
const (
	ReasonVerificationFailed = "Payment verification failed"
	ReasonProofUsed          = "Payment proof already used"
	ReasonLedgerUnavailable  = "Unable to record payment, try again later"
	ReasonChallengeFailed    = "Unable to issue payment challenge, try again later"
)

// Outcomes recorded in metrics and logs
const (
	OutcomeAdmitted      = "admitted"
	OutcomeChallenged    = "challenged"
	OutcomeRejected      = "rejected"
	OutcomeIndeterminate = "indeterminate"
	OutcomeReplayed      = "replayed"
)

// DefaultVerifyTimeout bounds one verification, chain reads included
const DefaultVerifyTimeout = 60 * time.Second

// Request is the part of an incoming request the gate looks at
type Request struct {
	Method        string
	Path          string
	Authorization string
}

// ErrorBody is the JSON body of a rejected payment
type ErrorBody struct {
	Error string `json:"error"`
}

// Decision tells the transport what to do with a request
type Decision struct {
	// Admit is true when the request should reach its handler unchanged
	Admit bool

	// Status, Header and Body describe the response when Admit is false
	Status int
	Header map[string]string
	Body   any

	// Payment is set when a protected request was admitted
	Payment *types.PaymentContext

	// Outcome is empty for unprotected requests
	Outcome string

	// Err classifies why a protected request was not admitted
	Err error
}

// Config holds the collaborators of a Gate
type Config struct {
	Routes        []types.ProtectedRoute
	Vault         *common.Address
	Issuer        *Issuer
	Verifier      verifier.Verifier
	Ledger        ledger.Ledger
	Metrics       metrics.Recorder
	Log           *zap.SugaredLogger
	VerifyTimeout time.Duration
}

// Gate intercepts protected routes. It is immutable after construction and
// safe for concurrent use.
type Gate struct {
	routes        []types.ProtectedRoute
	vault         *common.Address
	issuer        *Issuer
	verifier      verifier.Verifier
	ledger        ledger.Ledger
	metrics       metrics.Recorder
	log           *zap.SugaredLogger
	verifyTimeout time.Duration
}

// New creates a gate. Ledger may be nil, which leaves proofs reusable.
func New(cfg Config) *Gate {
	g := &Gate{
		routes:        append([]types.ProtectedRoute(nil), cfg.Routes...),
		vault:         cfg.Vault,
		issuer:        cfg.Issuer,
		verifier:      cfg.Verifier,
		ledger:        cfg.Ledger,
		metrics:       cfg.Metrics,
		log:           cfg.Log,
		verifyTimeout: cfg.VerifyTimeout,
	}

	if g.metrics == nil {
		g.metrics = metrics.NoopRecorder{}
	}
	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}
	if g.verifyTimeout <= 0 {
		g.verifyTimeout = DefaultVerifyTimeout
	}

	return g
}

// Route returns the protected route matching method and path
func (g *Gate) Route(method, path string) (types.ProtectedRoute, bool) {
	for _, r := range g.routes {
		if r.Matches(method, path) {
			return r, true
		}
	}
	return types.ProtectedRoute{}, false
}

// Evaluate applies the payment protocol to a request
func (g *Gate) Evaluate(ctx context.Context, req Request) Decision {
	route, protected := g.Route(req.Method, req.Path)
	if !protected {
		return Decision{Admit: true}
	}

	d := g.evaluate(ctx, req, route)
	g.metrics.IncCounter("gate", map[string]string{"route": route.Path, "outcome": d.Outcome})

	return d
}

func (g *Gate) evaluate(ctx context.Context, req Request, route types.ProtectedRoute) Decision {
	// No credentials at all
	if req.Authorization == "" {
		return g.challenge(route, "no authorization header")
	}

	// Garbled credentials are treated the same as missing ones
	cred, err := ParseAuthorization(req.Authorization)
	if err != nil {
		return g.challenge(route, err.Error())
	}

	g.log.Debugw("payment credential", "path", req.Path, "macaroon", cred.Macaroon, "proof", cred.Proof)

	result := g.verify(ctx, cred.Proof, route)
	switch result.Outcome {
	case types.OutcomeValid:
	case types.OutcomeIndeterminate:
		return g.reject(route, OutcomeIndeterminate, result.Failure())
	default:
		return g.reject(route, OutcomeRejected, result.Failure())
	}

	// Replay protection is opt-in
	if g.ledger != nil {
		fresh, err := g.ledger.Claim(context.WithoutCancel(ctx), cred.Proof)
		if err != nil {
			return g.reject(route, OutcomeIndeterminate, types.NewIndeterminateError(ReasonLedgerUnavailable, err))
		}
		if !fresh {
			return g.reject(route, OutcomeReplayed, types.NewInvalidProofError(ReasonProofUsed))
		}
	}

	g.log.Infow("payment accepted", "path", req.Path, "mode", g.verifier.Mode(), "payer", result.Payer)

	return Decision{
		Admit:   true,
		Outcome: OutcomeAdmitted,
		Payment: &types.PaymentContext{
			Credential: cred,
			Route:      route,
			Result:     result,
		},
	}
}

// verify runs the verifier detached from client cancellation so a dropped
// connection does not change the outcome. A panicking verifier yields a
// rejection instead of crashing the request.
func (g *Gate) verify(ctx context.Context, proof string, route types.ProtectedRoute) (result types.VerificationResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			g.log.Errorw("payment verification panic", "path", route.Path, "panic", rec, "stack", string(debug.Stack()))
			result = types.NewInvalidResult(ReasonVerificationFailed)
		}
		g.metrics.ObserveLatency("verify", time.Since(start), map[string]string{
			"mode":    g.verifier.Mode(),
			"outcome": string(result.Outcome),
		})
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.verifyTimeout)
	defer cancel()

	return g.verifier.Verify(ctx, proof, verifier.Expectation{
		Price:      route.Price,
		Recipients: g.recipients(route),
	})
}

// recipients are the addresses a payment may be sent to
func (g *Gate) recipients(route types.ProtectedRoute) []common.Address {
	out := []common.Address{route.Recipient}
	if g.vault != nil {
		out = append(out, *g.vault)
	}
	return out
}

func (g *Gate) challenge(route types.ProtectedRoute, why string) Decision {
	c, err := g.issuer.Issue(route)
	if err != nil {
		return g.reject(route, OutcomeIndeterminate, types.NewIndeterminateError(ReasonChallengeFailed, err))
	}

	g.log.Infow("payment required", "path", route.Path, "method", c.Method, "price", c.Price.String(), "reason", why)

	return Decision{
		Status:  http.StatusPaymentRequired,
		Header:  map[string]string{"WWW-Authenticate": Header(c)},
		Body:    c.Body(),
		Outcome: OutcomeChallenged,
		Err:     types.NewMissingCredentialError(why),
	}
}

// reject answers with the error's message as the body. Errors that wrap a
// cause are logged at error level.
func (g *Gate) reject(route types.ProtectedRoute, outcome string, pe *types.PaymentError) Decision {
	if pe.Err != nil {
		g.log.Errorw("payment rejected", "path", route.Path, "outcome", outcome, "ERROR", pe)
	} else {
		g.log.Infow("payment rejected", "path", route.Path, "outcome", outcome, "kind", pe.Kind, "reason", pe.Message)
	}

	return Decision{
		Status:  http.StatusPaymentRequired,
		Body:    ErrorBody{Error: pe.Message},
		Outcome: outcome,
		Err:     pe,
	}
}
