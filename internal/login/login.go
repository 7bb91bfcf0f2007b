package login

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/readpilot/internal/http"
	"github.com/wolfeidau/readpilot/internal/membership"
	"github.com/wolfeidau/readpilot/internal/models"
	"github.com/wolfeidau/readpilot/internal/store"
	"github.com/wolfeidau/readpilot/internal/telemetry"
	"github.com/wolfeidau/readpilot/internal/whop"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

const (
	SessionCookieName = "_session"
	stateCookieName   = "state"
	sessionIssuer     = "readpilot"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Provider is the OAuth identity provider used for sign-in.
type Provider interface {
	AuthCodeURL(redirectURL, state string) string
	Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error)
	Me(ctx context.Context, accessToken string) (*whop.User, error)
}

type Config struct {
	CallbackURL   string
	SessionSecret []byte
	SessionTTL    time.Duration

	// Secure marks cookies Secure, disable only for plain http development.
	Secure bool
}

// Whop handles sign-in with Whop and server-side sessions.
type Whop struct {
	provider Provider
	sessions store.SessionStore
	jar      *membership.Jar
	cfg      Config
}

func NewWhop(provider Provider, sessions store.SessionStore, jar *membership.Jar, cfg Config) (*Whop, error) {
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("session secret must be 32 bytes")
	}

	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("callback URL is required")
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}

	if provider == nil || sessions == nil || jar == nil {
		return nil, fmt.Errorf("provider, session store and membership jar are required")
	}

	return &Whop{
		provider: provider,
		sessions: sessions,
		jar:      jar,
		cfg:      cfg,
	}, nil
}

// createSessionToken signs a cookie value carrying the session id.
func (g *Whop) createSessionToken(session *models.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        session.SessionID.String(),
		Subject:   session.UserID,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.cfg.SessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// validateSessionToken checks the signature and expiry and returns the session id.
func (g *Whop) validateSessionToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return g.cfg.SessionSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			log.Debug().Msg("Session token expired")
			return uuid.Nil, ErrExpiredSession
		}
		log.Debug().Err(err).Msg("Session token validation failed")
		return uuid.Nil, ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, ErrInvalidSession
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		log.Debug().Msg("Session token has an invalid session id")
		return uuid.Nil, ErrInvalidSession
	}

	return sessionID, nil
}

// GetSession extracts and validates the session from a request
func (g *Whop) GetSession(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}

	sessionID, err := g.validateSessionToken(cookie.Value)
	if err != nil {
		return nil, err
	}

	session, err := g.sessions.Get(r.Context(), sessionID)
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		return nil, ErrExpiredSession
	case errors.Is(err, store.ErrSessionNotFound):
		return nil, ErrInvalidSession
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := g.sessions.UpdateLastUsed(r.Context(), sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to update session last used")
	}

	return session, nil
}

// LoadSession attaches the signed-in session, if there is one, to the request
// context. Anonymous requests pass through unchanged.
func (g *Whop) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := g.GetSession(r)
		if err != nil {
			if !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrExpiredSession) {
				log.Error().Err(err).Msg("Failed to load session")
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
	})
}

// RequireSession rejects requests without a valid session by redirecting to
// redirectURL with an error_code query parameter.
func (g *Whop) RequireSession(redirectURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			session, err := g.GetSession(r)
			if err != nil {
				errorCode := "invalid"
				if errors.Is(err, ErrExpiredSession) {
					errorCode = "expired"
				}
				log.Debug().Str("path", r.URL.Path).Str("error_code", errorCode).Msg("No session, redirecting")

				http.Redirect(w, r, redirectURL+"?error_code="+errorCode, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// ContextWithSession returns a copy of ctx carrying session.
func ContextWithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext extracts the session from the request context.
// This should be called from handlers wrapped by LoadSession or RequireSession.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	return session, ok
}

func (g *Whop) saveState(w http.ResponseWriter, r *http.Request) string {
	// generate random state
	state := rand.Text()

	cookie := &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes - enough time for OAuth flow
	}
	http.SetCookie(w, cookie)

	return state
}

func (g *Whop) LoginHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("Initiating Whop OAuth flow")

	state := g.saveState(w, r)

	http.Redirect(w, r, g.provider.AuthCodeURL(g.cfg.CallbackURL, state), http.StatusFound)
}

func (g *Whop) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("OAuth callback received")

	state := r.FormValue("state")
	code := r.FormValue("code")

	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		log.Warn().Err(err).Msg("OAuth callback missing state cookie")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	if state != cookie.Value {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	// Clear the state cookie after validation
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	ctx := r.Context()

	token, err := g.provider.Exchange(ctx, g.cfg.CallbackURL, code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to exchange OAuth code for token")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	user, err := g.provider.Me(ctx, token.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch user from Whop")
		http.Error(w, "Authentication failed", http.StatusBadGateway)
		return
	}

	session, err := g.createSession(ctx, r, user, token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	sessionToken, err := g.createSessionToken(session)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})

	log.Info().Str("user", user.ID).Msg("User signed in")

	http.Redirect(w, r, "/", http.StatusFound)
}

func (g *Whop) createSession(ctx context.Context, r *http.Request, user *whop.User, token *oauth2.Token) (*models.Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(g.cfg.SessionTTL)
	// never outlive the provider's access token
	if !token.Expiry.IsZero() && token.Expiry.Before(expiresAt) {
		expiresAt = token.Expiry
	}

	session := &models.Session{
		SessionID:   sessionID,
		UserID:      user.ID,
		Name:        user.DisplayName(),
		AccessToken: token.AccessToken,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		LastUsedAt:  now,
		UserAgent:   r.UserAgent(),
		IPAddress:   httpmiddleware.ClientIPFromContext(ctx),
	}

	if err := g.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)

	return session, nil
}

// LogoutHandler deletes the session and clears the session and membership cookies.
func (g *Whop) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if sessionID, err := g.validateSessionToken(cookie.Value); err == nil {
			if err := g.sessions.Delete(r.Context(), sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
				log.Error().Err(err).Msg("Failed to delete session")
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	g.jar.Write(r.Context(), w, membership.Unknown)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
