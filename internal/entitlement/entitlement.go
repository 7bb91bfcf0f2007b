// Package entitlement answers one question: does a given identity proof grant
// access to the tool? Each proof kind maps to one upstream call sequence
// against the membership provider.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/readpilot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTimeout bounds a single entitlement check, including a code exchange
// followed by an access check.
const DefaultTimeout = 10 * time.Second

var (
	ErrEmptyProof   = errors.New("proof value is empty")
	ErrUnknownProof = errors.New("unknown proof kind")
)

// ProofKind identifies what a Proof value carries.
type ProofKind string

const (
	KindAccessToken  ProofKind = "access_token"
	KindCode         ProofKind = "code"
	KindMembershipID ProofKind = "membership_id"
)

// Proof is a short-lived credential presented for an entitlement check.
type Proof struct {
	Kind  ProofKind
	Value string
}

func AccessToken(v string) Proof  { return Proof{Kind: KindAccessToken, Value: v} }
func Code(v string) Proof         { return Proof{Kind: KindCode, Value: v} }
func MembershipID(v string) Proof { return Proof{Kind: KindMembershipID, Value: v} }

// Verdict is the provider's answer for a proof. Plan is only set for
// membership id proofs.
type Verdict struct {
	Entitled bool
	Plan     string
}

// Provider is the membership provider as seen by the verifier.
type Provider interface {
	HasAccess(ctx context.Context, accessToken, passID string) (bool, error)
	// ExchangeCode returns an empty token when the provider rejects the code.
	ExchangeCode(ctx context.Context, code string) (string, error)
	MembershipPlan(ctx context.Context, membershipID string) (string, error)
}

type Config struct {
	// RequiredPass is the pass a user must hold for access token and code proofs.
	RequiredPass string

	// RecommendedPlans lists the plans (free and paid) that entitle a membership.
	RecommendedPlans []string

	Timeout time.Duration
}

func (c Config) Validate() error {
	if c.RequiredPass == "" {
		return errors.New("required pass is not configured")
	}
	if len(c.RecommendedPlans) == 0 {
		return errors.New("at least one recommended plan is required")
	}
	return nil
}

// Verifier runs entitlement checks against a Provider.
type Verifier struct {
	provider Provider
	cfg      Config
	metrics  *telemetry.Metrics
}

func NewVerifier(provider Provider, cfg Config) (*Verifier, error) {
	if provider == nil {
		return nil, errors.New("entitlement provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Verifier{
		provider: provider,
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
	}, nil
}

// Verify checks a single proof. Empty or unknown proofs fail before any
// upstream call is made. There are no retries.
func (v *Verifier) Verify(ctx context.Context, proof Proof) (Verdict, error) {
	switch proof.Kind {
	case KindAccessToken, KindCode, KindMembershipID:
	default:
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnknownProof, proof.Kind)
	}

	if proof.Value == "" {
		return Verdict{}, fmt.Errorf("%w: %s", ErrEmptyProof, proof.Kind)
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	start := time.Now()
	verdict, err := v.verify(ctx, proof)
	v.record(ctx, proof.Kind, verdict, err, time.Since(start))

	zerolog.Ctx(ctx).Debug().
		Str("kind", string(proof.Kind)).
		Bool("entitled", verdict.Entitled).
		Err(err).
		Msg("entitlement check")

	return verdict, err
}

func (v *Verifier) verify(ctx context.Context, proof Proof) (Verdict, error) {
	switch proof.Kind {
	case KindAccessToken:
		return v.checkAccessToken(ctx, proof.Value)

	case KindCode:
		token, err := v.provider.ExchangeCode(ctx, proof.Value)
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to exchange code: %w", err)
		}
		if token == "" {
			return Verdict{Entitled: false}, nil
		}
		return v.checkAccessToken(ctx, token)

	case KindMembershipID:
		plan, err := v.provider.MembershipPlan(ctx, proof.Value)
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to fetch membership: %w", err)
		}
		return Verdict{
			Entitled: slices.Contains(v.cfg.RecommendedPlans, plan),
			Plan:     plan,
		}, nil
	}

	return Verdict{}, ErrUnknownProof
}

func (v *Verifier) checkAccessToken(ctx context.Context, token string) (Verdict, error) {
	ok, err := v.provider.HasAccess(ctx, token, v.cfg.RequiredPass)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to check pass access: %w", err)
	}
	return Verdict{Entitled: ok}, nil
}

func (v *Verifier) record(ctx context.Context, kind ProofKind, verdict Verdict, err error, elapsed time.Duration) {
	outcome := "not_entitled"
	switch {
	case err != nil:
		outcome = "error"
	case verdict.Entitled:
		outcome = "entitled"
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	)

	v.metrics.EntitlementChecksTotal.Add(ctx, 1, attrs)
	v.metrics.EntitlementCheckDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
