package membership

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/readpilot/internal/entitlement"
)

type fakeChecker struct {
	verdicts map[entitlement.Proof]entitlement.Verdict
	errs     map[entitlement.Proof]error
	calls    []entitlement.Proof
}

func (f *fakeChecker) Verify(ctx context.Context, proof entitlement.Proof) (entitlement.Verdict, error) {
	f.calls = append(f.calls, proof)
	if err, ok := f.errs[proof]; ok {
		return entitlement.Verdict{}, err
	}
	return f.verdicts[proof], nil
}

func TestReconcileSession(t *testing.T) {
	tests := []struct {
		name       string
		cached     State
		token      string
		verdict    *entitlement.Verdict
		err        error
		wantState  State
		wantReload bool
		wantCalls  int
	}{
		{
			name:      "no token issues no check",
			cached:    NotEntitled,
			wantState: NotEntitled,
		},
		{
			name:       "entitled overturns cached paywall and reloads",
			cached:     NotEntitled,
			token:      "tok",
			verdict:    &entitlement.Verdict{Entitled: true},
			wantState:  Entitled,
			wantReload: true,
			wantCalls:  1,
		},
		{
			name:       "revoked overturns cached access and reloads",
			cached:     Entitled,
			token:      "tok",
			verdict:    &entitlement.Verdict{Entitled: false},
			wantState:  NotEntitled,
			wantReload: true,
			wantCalls:  1,
		},
		{
			name:      "first verdict does not reload",
			cached:    Unknown,
			token:     "tok",
			verdict:   &entitlement.Verdict{Entitled: true},
			wantState: Entitled,
			wantCalls: 1,
		},
		{
			name:      "agreeing verdict does not reload",
			cached:    Entitled,
			token:     "tok",
			verdict:   &entitlement.Verdict{Entitled: true},
			wantState: Entitled,
			wantCalls: 1,
		},
		{
			name:      "failure keeps unknown state",
			cached:    Unknown,
			token:     "tok",
			err:       errors.New("upstream 500"),
			wantState: Unknown,
			wantCalls: 1,
		},
		{
			name:      "failure keeps cached paywall",
			cached:    NotEntitled,
			token:     "tok",
			err:       errors.New("upstream 500"),
			wantState: NotEntitled,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof := entitlement.AccessToken(tt.token)
			checker := &fakeChecker{
				verdicts: map[entitlement.Proof]entitlement.Verdict{},
				errs:     map[entitlement.Proof]error{},
			}
			if tt.verdict != nil {
				checker.verdicts[proof] = *tt.verdict
			}
			if tt.err != nil {
				checker.errs[proof] = tt.err
			}

			out := NewReconciler(checker).ReconcileSession(context.Background(), tt.cached, tt.token)
			require.Equal(t, tt.cached, out.Previous)
			require.Equal(t, tt.wantState, out.Current)
			require.Equal(t, tt.wantReload, out.Reload)
			require.Equal(t, tt.wantCalls > 0, out.Checked)
			require.Len(t, checker.calls, tt.wantCalls)
		})
	}
}

func TestReconcileRedirect_EntitledShortCircuits(t *testing.T) {
	checker := &fakeChecker{}

	out := NewReconciler(checker).ReconcileRedirect(context.Background(), Entitled, RedirectParams{
		MembershipID: "mem_1",
		Code:         "abc",
	})

	require.Empty(t, checker.calls)
	require.False(t, out.Checked)
	require.Equal(t, Entitled, out.Current)
}

func TestReconcileRedirect_CodeFlipsCachedPaywall(t *testing.T) {
	checker := &fakeChecker{verdicts: map[entitlement.Proof]entitlement.Verdict{
		entitlement.Code("abc"): {Entitled: true},
	}}

	out := NewReconciler(checker).ReconcileRedirect(context.Background(), NotEntitled, RedirectParams{Code: "abc"})

	require.Equal(t, []entitlement.Proof{entitlement.Code("abc")}, checker.calls)
	require.Equal(t, Entitled, out.Current)
	require.True(t, out.Reload)
}

func TestReconcileRedirect_EachParamCheckedOnce(t *testing.T) {
	checker := &fakeChecker{verdicts: map[entitlement.Proof]entitlement.Verdict{
		entitlement.MembershipID("mem_1"): {Entitled: false, Plan: "plan_legacy"},
		entitlement.Code("abc"):           {Entitled: true},
	}}

	out := NewReconciler(checker).ReconcileRedirect(context.Background(), Unknown, RedirectParams{
		MembershipID: "mem_1",
		Code:         "abc",
	})

	require.Equal(t, []entitlement.Proof{
		entitlement.MembershipID("mem_1"),
		entitlement.Code("abc"),
	}, checker.calls)
	require.Equal(t, Entitled, out.Current)
	require.False(t, out.Reload)
}

func TestReconcileRedirect_FailuresLeaveStateUnchanged(t *testing.T) {
	checker := &fakeChecker{errs: map[entitlement.Proof]error{
		entitlement.MembershipID("mem_1"): errors.New("timeout"),
	}}

	out := NewReconciler(checker).ReconcileRedirect(context.Background(), NotEntitled, RedirectParams{MembershipID: "mem_1"})

	require.True(t, out.Checked)
	require.Equal(t, NotEntitled, out.Current)
	require.False(t, out.Changed())
}

func TestReconcileRedirect_NotEntitledVerdictRecorded(t *testing.T) {
	checker := &fakeChecker{verdicts: map[entitlement.Proof]entitlement.Verdict{
		entitlement.Code("abc"): {Entitled: false},
	}}

	out := NewReconciler(checker).ReconcileRedirect(context.Background(), Unknown, RedirectParams{Code: "abc"})
	require.Equal(t, NotEntitled, out.Current)
}

func TestRedirectParams(t *testing.T) {
	u, err := url.Parse("https://readpilot.test/?membershipId=mem_1&code=abc&utm=x")
	require.NoError(t, err)

	p := ParseRedirectParams(u.Query())
	require.Equal(t, RedirectParams{MembershipID: "mem_1", Code: "abc"}, p)
	require.False(t, p.Empty())
	require.True(t, RedirectParams{}.Empty())

	clean := StripRedirectParams(u)
	require.Equal(t, "utm=x", clean.RawQuery)
	require.Contains(t, u.RawQuery, "code=abc", "original url must not be modified")
}
