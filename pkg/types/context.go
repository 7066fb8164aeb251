package types

import "context"

type ctxKey int

const paymentKey ctxKey = 1

// PaymentContext describes the payment that admitted a request
type PaymentContext struct {
	Credential PaymentCredential
	Route      ProtectedRoute
	Result     VerificationResult
}

// WithPayment stores the admitting payment in the context
func WithPayment(ctx context.Context, p PaymentContext) context.Context {
	return context.WithValue(ctx, paymentKey, p)
}

// PaymentFromContext returns the admitting payment, if any
func PaymentFromContext(ctx context.Context) (PaymentContext, bool) {
	p, ok := ctx.Value(paymentKey).(PaymentContext)
	return p, ok
}
