// Package website serves the Read Pilot pages and the JSON relay endpoints.
package website

import (
	"embed"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/readpilot/internal/analyze"
	"github.com/wolfeidau/readpilot/internal/entitlement"
	httpmiddleware "github.com/wolfeidau/readpilot/internal/http"
	"github.com/wolfeidau/readpilot/internal/login"
	"github.com/wolfeidau/readpilot/internal/membership"
	"github.com/wolfeidau/readpilot/internal/models"
)

// Templates holds the page templates, parsed with TemplatePattern.
//
//go:embed templates/*.html
var Templates embed.FS

const (
	TemplatePattern = "templates/*.html"
	EntryPoint      = "ui/pages/index.ts"
	pageTitle       = "Read Pilot"
)

// Renderer renders a page template together with the scripts of an entrypoint.
type Renderer interface {
	Render(w io.Writer, templateName, title, entryPointPath string, data any) error
}

// LinkBuilder turns a plan id into a checkout URL.
type LinkBuilder interface {
	PurchaseLink(planID string) string
}

type PurchaseLink struct {
	Label string
	URL   string
}

type Config struct {
	FreePlanID string
	PaidPlanID string
}

// HomeView is the template context of the home page.
type HomeView struct {
	Session       *models.Session
	State         membership.State
	Entitled      bool
	PurchaseLinks []PurchaseLink
	Workflow      analyze.Workflow
}

// Server holds the page and API handlers.
type Server struct {
	renderer   Renderer
	checker    membership.Checker
	reconciler *membership.Reconciler
	jar        *membership.Jar
	analyzer   analyze.Analyzer
	links      []PurchaseLink
}

func NewServer(renderer Renderer, checker membership.Checker, jar *membership.Jar, analyzer analyze.Analyzer, links LinkBuilder, cfg Config) (*Server, error) {
	if renderer == nil || checker == nil || jar == nil || analyzer == nil || links == nil {
		return nil, errors.New("renderer, checker, jar, analyzer and link builder are required")
	}

	if cfg.FreePlanID == "" || cfg.PaidPlanID == "" {
		return nil, errors.New("free and paid plan ids are required")
	}

	return &Server{
		renderer:   renderer,
		checker:    checker,
		reconciler: membership.NewReconciler(checker),
		jar:        jar,
		analyzer:   analyzer,
		links: []PurchaseLink{
			{Label: "Get Access for Free →", URL: links.PurchaseLink(cfg.FreePlanID)},
			{Label: "Get Access for $0.99 →", URL: links.PurchaseLink(cfg.PaidPlanID)},
		},
	}, nil
}

// HomePage reconciles the membership flag, first with the signed-in session and
// then with any redirect parameters, and renders the page.
func (s *Server) HomePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cached := s.jar.Read(r)
	session, _ := login.SessionFromContext(ctx)

	var accessToken string
	if session != nil {
		accessToken = session.AccessToken
	}

	sessionOutcome := s.reconciler.ReconcileSession(ctx, cached, accessToken)

	params := membership.ParseRedirectParams(r.URL.Query())
	redirectOutcome := s.reconciler.ReconcileRedirect(ctx, sessionOutcome.Current, params)

	state := redirectOutcome.Current
	if state != cached {
		s.jar.Write(ctx, w, state)
	}

	switch {
	case !params.Empty():
		http.Redirect(w, r, membership.StripRedirectParams(r.URL).RequestURI(), http.StatusSeeOther)
		return
	case sessionOutcome.Reload || redirectOutcome.Reload:
		http.Redirect(w, r, r.URL.RequestURI(), http.StatusSeeOther)
		return
	}

	s.render(w, r, s.view(session, state, analyze.Workflow{}))
}

// AnalyzeForm handles the analyze form without JavaScript.
func (s *Server) AnalyzeForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := s.jar.Read(r)
	if state != membership.Entitled {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	workflow := analyze.Workflow{URL: strings.TrimSpace(r.PostForm.Get("url"))}
	// failures leave the page as it was
	_ = workflow.Submit(ctx, s.analyzer)

	session, _ := login.SessionFromContext(ctx)
	s.render(w, r, s.view(session, state, workflow))
}

func (s *Server) view(session *models.Session, state membership.State, workflow analyze.Workflow) HomeView {
	return HomeView{
		Session:       session,
		State:         state,
		Entitled:      state == membership.Entitled,
		PurchaseLinks: s.links,
		Workflow:      workflow,
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, view HomeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if err := s.renderer.Render(w, "home", pageTitle, EntryPoint, view); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type relayRequest struct {
	AccessToken  string `json:"access_token"`
	Code         string `json:"code"`
	MembershipID string `json:"membershipId"`
}

func (req relayRequest) proof(kind entitlement.ProofKind) entitlement.Proof {
	switch kind {
	case entitlement.KindAccessToken:
		return entitlement.AccessToken(req.AccessToken)
	case entitlement.KindCode:
		return entitlement.Code(req.Code)
	default:
		return entitlement.MembershipID(req.MembershipID)
	}
}

// accessResponse keeps the field spelling existing clients read.
type accessResponse struct {
	Vaid bool `json:"vaid"`
}

type membershipResponse struct {
	Plan string `json:"plan"`
}

// Relay returns a handler that verifies one proof kind taken from the JSON body,
// stores the verdict in the membership cookie and answers with it.
func (s *Server) Relay(kind entitlement.ProofKind, emptyMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req relayRequest
		if err := httpmiddleware.DecodeJSON(r, &req); err != nil {
			httpmiddleware.RespondDecodeError(w, r, err)
			return
		}

		proof := req.proof(kind)
		if proof.Value == "" {
			httpmiddleware.RespondError(w, r, http.StatusBadRequest, emptyMsg)
			return
		}

		verdict, err := s.checker.Verify(ctx, proof)
		if err != nil {
			if errors.Is(err, entitlement.ErrEmptyProof) {
				httpmiddleware.RespondError(w, r, http.StatusBadRequest, emptyMsg)
				return
			}
			zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(kind)).Msg("entitlement relay failed")
			httpmiddleware.RespondError(w, r, http.StatusBadGateway, "Failed to reach membership provider")
			return
		}

		s.jar.Write(ctx, w, membership.FromVerdict(verdict.Entitled))

		if kind == entitlement.KindMembershipID {
			httpmiddleware.RespondJSON(w, r, http.StatusOK, membershipResponse{Plan: verdict.Plan})
			return
		}

		httpmiddleware.RespondJSON(w, r, http.StatusOK, accessResponse{Vaid: verdict.Entitled})
	}
}

// AnalyzeAPI is the JSON analyze endpoint used by the browser script.
func (s *Server) AnalyzeAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		URL string `json:"url"`
	}
	if err := httpmiddleware.DecodeJSON(r, &req); err != nil {
		httpmiddleware.RespondDecodeError(w, r, err)
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		httpmiddleware.RespondError(w, r, http.StatusBadRequest, "URL is empty")
		return
	}

	if s.jar.Read(r) != membership.Entitled {
		httpmiddleware.RespondError(w, r, http.StatusForbidden, "Membership required")
		return
	}

	cards, err := s.analyzer.Analyze(ctx, req.URL)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("analyze failed")
		httpmiddleware.RespondError(w, r, http.StatusBadGateway, "Failed to analyze article")
		return
	}

	httpmiddleware.RespondJSON(w, r, http.StatusOK, analyze.Response{Data: cards})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	httpmiddleware.RespondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
