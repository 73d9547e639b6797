// Package auth validates the API key every request carries in its "apikey" header before it reaches the metadata or
// data query services.
package auth

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a request is refused with.
const (
	ReasonMissing   = "Missing API key"
	ReasonIncorrect = "Incorrect API key"
)

var authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chainquery_auth_failures_total",
	Help: "Requests refused by reason.",
}, []string{"reason"})

// Result is the outcome of validating a key. Key is only set when Authorized.
type Result struct {
	Authorized bool
	Reason     string
	Key        string
}

// Oracle decides whether a key is valid.
type Oracle interface {
	Valid(ctx context.Context, key string) (bool, error)
}

// Authenticator applies the API key policy.
type Authenticator struct {
	oracle     Oracle
	allowBlank bool
	log        *slog.Logger
}

// New returns an Authenticator asking oracle. With allowBlank, requests without a key are let through.
func New(oracle Oracle, allowBlank bool, log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}

	return &Authenticator{oracle: oracle, allowBlank: allowBlank, log: log}
}

// ValidateAPIKey validates key; present tells whether the request carried one at all. An error from the oracle
// refuses the key.
func (a *Authenticator) ValidateAPIKey(ctx context.Context, key string, present bool) Result {
	if !present {
		if a.allowBlank {
			return Result{Authorized: true}
		}

		return refuse(ReasonMissing)
	}

	ok, err := a.oracle.Valid(ctx, key)
	if err != nil {
		a.log.Error("API key validation failed, refusing request", slog.Any("error", err))

		return refuse(ReasonIncorrect)
	}

	if !ok {
		return refuse(ReasonIncorrect)
	}

	return Result{Authorized: true, Key: key}
}

func refuse(reason string) Result {
	authFailures.WithLabelValues(reason).Inc()

	return Result{Reason: reason}
}
