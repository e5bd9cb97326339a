package challenge

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tolelom/tolchallenge/access"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "challenge_operations_total",
	Help: "Challenge engine operations by operation and outcome.",
}, []string{"op", "result"})

func observe(op string, err error) {
	operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	var (
		unauthorized *access.UnauthorizedError
		verification *VerificationError
		transfer     *TransferFailedError
		payout       *PayoutError
		recipient    *PayoutToAddressError
		notFound     *GetChallengeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.As(err, &unauthorized):
		return "unauthorized"
	case errors.As(err, &verification):
		return "verification_failed"
	case errors.As(err, &transfer):
		return "transfer_failed"
	case errors.As(err, &payout), errors.As(err, &recipient):
		return "invalid_payout"
	case errors.As(err, &notFound):
		return "not_found"
	case isPrecondition(err):
		return "precondition"
	default:
		return "error"
	}
}

func isPrecondition(err error) bool {
	var (
		c *CreateChallengeError
		j *JoinChallengeError
		l *LeaveChallengeError
		k *LockChallengeError
		r *ResolveChallengeError
		x *CancelChallengeError
	)
	return errors.As(err, &c) || errors.As(err, &j) || errors.As(err, &l) ||
		errors.As(err, &k) || errors.As(err, &r) || errors.As(err, &x)
}
