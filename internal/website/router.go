package website

import (
	"net/http"
	"strings"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/readpilot/internal/entitlement"
	httpmiddleware "github.com/wolfeidau/readpilot/internal/http"
	"github.com/wolfeidau/readpilot/internal/logger"
)

// Auth is the sign-in surface mounted by the router.
type Auth interface {
	LoadSession(next http.Handler) http.Handler
	LoginHandler(w http.ResponseWriter, r *http.Request)
	CallbackHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
}

type RouterConfig struct {
	// PublicDir holds the built assets served under /public/.
	PublicDir   string
	CORSOrigins []string
	Logger      zerolog.Logger
}

// NewRouter wires the pages, the API relays and the sign-in routes.
func NewRouter(s *Server, auth Auth, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logger.Requests(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.ClientIPMiddleware())

	r.Get("/healthz", Healthz)

	r.Handle("/public/*", http.StripPrefix("/public/", http.FileServer(http.Dir(cfg.PublicDir))))

	r.Group(func(r chi.Router) {
		r.Use(auth.LoadSession)

		r.Get("/", s.HomePage)
		r.Post("/analyze", s.AnalyzeForm)

		r.Get("/login", auth.LoginHandler)
		r.Get("/auth/callback", auth.CallbackHandler)
		r.Post("/logout", auth.LogoutHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/fetchUserAccess", s.Relay(entitlement.KindAccessToken, "Access token is empty"))
		r.Post("/fetchCodeAccess", s.Relay(entitlement.KindCode, "Code is empty"))
		r.Post("/fetchMembership", s.Relay(entitlement.KindMembershipID, "Membership ID is empty"))
		r.Post("/analyze", s.AnalyzeAPI)
	})

	// CSRF protection for HTML pages (not applied to API routes)
	protection := csrf.New()
	api := withCORS(cfg.CORSOrigins, r)
	pages := protection.Handler(r)

	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// API routes get CORS, HTML routes get CSRF
		if isAPIRoute(req.URL.Path) {
			api.ServeHTTP(w, req)
		} else {
			pages.ServeHTTP(w, req)
		}
	})

	return gzhttp.GzipHandler(handler)
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support for browser clients calling the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true, // Required for the membership cookie
	})
	return middleware.Handler(h)
}
