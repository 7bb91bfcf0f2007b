package membership

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/readpilot/internal/entitlement"
	"github.com/wolfeidau/readpilot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query parameters set by the provider when redirecting back after a purchase
// or an OAuth authorization.
const (
	ParamMembershipID = "membershipId"
	ParamCode         = "code"
)

// Checker verifies a single identity proof.
type Checker interface {
	Verify(ctx context.Context, proof entitlement.Proof) (entitlement.Verdict, error)
}

// Outcome describes a reconciliation pass.
type Outcome struct {
	Previous State
	Current  State

	// Checked is true when at least one entitlement check was issued.
	Checked bool

	// Reload is true when a previously cached verdict was overturned and the
	// page must be rendered again from the new state.
	Reload bool
}

func (o Outcome) Changed() bool { return o.Previous != o.Current }

// RedirectParams are the membership proofs carried on a redirect back to the home page.
type RedirectParams struct {
	MembershipID string
	Code         string
}

func ParseRedirectParams(q url.Values) RedirectParams {
	return RedirectParams{
		MembershipID: q.Get(ParamMembershipID),
		Code:         q.Get(ParamCode),
	}
}

func (p RedirectParams) Empty() bool { return p.MembershipID == "" && p.Code == "" }

// StripRedirectParams returns a copy of u without the redirect parameters so
// that a reload does not submit them again.
func StripRedirectParams(u *url.URL) *url.URL {
	clean := *u
	q := clean.Query()
	q.Del(ParamMembershipID)
	q.Del(ParamCode)
	clean.RawQuery = q.Encode()
	return &clean
}

// Reconciler brings a cached membership state in line with the provider.
type Reconciler struct {
	checker Checker
	metrics *telemetry.Metrics
}

func NewReconciler(checker Checker) *Reconciler {
	return &Reconciler{checker: checker, metrics: telemetry.GetMetrics()}
}

// ReconcileSession re-checks the signed-in user's access token. A failed check
// leaves the cached state as it was.
func (r *Reconciler) ReconcileSession(ctx context.Context, cached State, accessToken string) Outcome {
	out := Outcome{Previous: cached, Current: cached}
	if accessToken == "" {
		return out
	}

	out.Checked = true

	verdict, err := r.checker.Verify(ctx, entitlement.AccessToken(accessToken))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("session entitlement check failed, keeping cached membership")
		return out
	}

	out.Current = FromVerdict(verdict.Entitled)
	out.Reload = cached.Known() && out.Changed()

	if out.Reload {
		r.metrics.MembershipReloadsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", "session"),
			attribute.String("to", out.Current.String()),
		))
	}

	return out
}

// ReconcileRedirect checks the proofs carried on a redirect. Nothing is checked
// once the cached state is already Entitled. Otherwise each present parameter
// is checked exactly once and an entitling verdict wins.
func (r *Reconciler) ReconcileRedirect(ctx context.Context, cached State, params RedirectParams) Outcome {
	out := Outcome{Previous: cached, Current: cached}
	if params.Empty() || cached == Entitled {
		return out
	}

	var proofs []entitlement.Proof
	if params.MembershipID != "" {
		proofs = append(proofs, entitlement.MembershipID(params.MembershipID))
	}
	if params.Code != "" {
		proofs = append(proofs, entitlement.Code(params.Code))
	}

	var answered, entitled bool
	for _, proof := range proofs {
		out.Checked = true

		verdict, err := r.checker.Verify(ctx, proof)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("kind", string(proof.Kind)).Msg("redirect entitlement check failed")
			continue
		}

		answered = true
		entitled = entitled || verdict.Entitled
	}

	if answered {
		out.Current = FromVerdict(entitled)
	}
	out.Reload = cached.Known() && out.Changed()

	if out.Reload {
		r.metrics.MembershipReloadsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", "redirect"),
			attribute.String("to", out.Current.String()),
		))
	}

	return out
}
