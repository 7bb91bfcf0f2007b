package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/readpilot/internal/analyze"
	"github.com/wolfeidau/readpilot/internal/assets"
	"github.com/wolfeidau/readpilot/internal/client"
	"github.com/wolfeidau/readpilot/internal/entitlement"
	"github.com/wolfeidau/readpilot/internal/logger"
	"github.com/wolfeidau/readpilot/internal/login"
	"github.com/wolfeidau/readpilot/internal/membership"
	"github.com/wolfeidau/readpilot/internal/store"
	memorystore "github.com/wolfeidau/readpilot/internal/store/memory"
	postgresstore "github.com/wolfeidau/readpilot/internal/store/postgres"
	"github.com/wolfeidau/readpilot/internal/telemetry"
	"github.com/wolfeidau/readpilot/internal/website"
	"github.com/wolfeidau/readpilot/internal/whop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type WebsiteCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"READPILOT_LISTEN"`
	Cert   string `help:"path to TLS cert file, plain HTTP (with h2c) when unset" default:"" env:"READPILOT_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"READPILOT_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"READPILOT_CORS_ORIGINS"`

	Whop WhopFlags `embed:"" prefix:"whop-"`

	// Analysis service
	AnalyzeEndpoint string `help:"URL of the article analysis service" required:"" env:"READPILOT_ANALYZE_ENDPOINT"`

	// Sessions and membership cookie
	CallbackURL        string        `help:"OAuth callback URL for sign-in" required:"" env:"READPILOT_CALLBACK_URL"`
	SessionSecret      string        `help:"secret used to sign session cookies, at least 32 bytes" required:"" env:"READPILOT_SESSION_SECRET"`
	SessionTTL         time.Duration `help:"session TTL" default:"168h" env:"READPILOT_SESSION_TTL"`
	SessionCleanup     time.Duration `help:"interval between expired session sweeps" default:"15m" env:"READPILOT_SESSION_CLEANUP_INTERVAL"`
	MembershipMaxAge   time.Duration `help:"max age of the membership cookie" default:"168h" env:"READPILOT_MEMBERSHIP_MAX_AGE"`
	InsecureCookies    bool          `help:"do not mark cookies Secure (plain http development only)" default:"false" env:"READPILOT_INSECURE_COOKIES"`
	EntitlementTimeout time.Duration `help:"timeout for a single entitlement check" default:"10s" env:"READPILOT_ENTITLEMENT_TIMEOUT"`

	// Upstream HTTP
	HTTPTimeout time.Duration `help:"timeout for upstream HTTP requests" default:"15s" env:"READPILOT_HTTP_TIMEOUT"`

	// Development and operational modes
	SkipBuild        bool    `help:"serve pre-built assets using the existing metafile" default:"false" env:"READPILOT_SKIP_BUILD"`
	Tracing          bool    `help:"enable tracing" default:"false" env:"READPILOT_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"READPILOT_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"session store type (memory or postgres)" default:"memory" env:"READPILOT_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

// WhopFlags configures the Whop application and the plans that grant access.
type WhopFlags struct {
	ClientID     string `help:"Whop OAuth client ID" required:"" env:"READPILOT_WHOP_CLIENT_ID"`
	ClientSecret string `help:"Whop OAuth client secret" required:"" env:"READPILOT_WHOP_CLIENT_SECRET"`
	RedirectURI  string `help:"redirect URI registered for codes returned to the home page" required:"" env:"READPILOT_WHOP_REDIRECT_URI"`
	APIKey       string `help:"Whop API key for membership lookups" env:"READPILOT_WHOP_API_KEY"`

	RequiredPass string `help:"pass a user must hold" required:"" env:"READPILOT_REQUIRED_PASS"`
	FreePlanID   string `help:"recommended free plan id" required:"" env:"READPILOT_RECOMMENDED_PLAN_ID"`
	PaidPlanID   string `help:"recommended paid plan id" required:"" env:"READPILOT_PAID_RECOMMENDED_PLAN_ID"`

	APIBaseURL  string `help:"Whop API base URL" default:"https://api.whop.com" env:"READPILOT_WHOP_API_BASE_URL"`
	CheckoutURL string `help:"Whop checkout base URL" default:"https://whop.com/checkout" env:"READPILOT_WHOP_CHECKOUT_URL"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"READPILOT_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *WebsiteCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 bytes (--session-secret or READPILOT_SESSION_SECRET)")
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "readpilot",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	sessionStore, closeStore, err := c.createSessionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	janitor := store.NewJanitor(ctx, sessionStore, c.SessionCleanup)
	defer janitor.Stop()

	httpClient := client.NewHTTPClient(c.HTTPTimeout)

	whopClient, err := whop.NewClient(whop.Config{
		ClientID:        c.Whop.ClientID,
		ClientSecret:    c.Whop.ClientSecret,
		RedirectURL:     c.Whop.RedirectURI,
		APIKey:          c.Whop.APIKey,
		APIBaseURL:      c.Whop.APIBaseURL,
		CheckoutBaseURL: c.Whop.CheckoutURL,
	}, httpClient)
	if err != nil {
		return fmt.Errorf("failed to create Whop client: %w", err)
	}

	if c.Whop.APIKey == "" {
		log.Warn().Msg("No Whop API key configured, membership id checks will fail")
	}

	verifier, err := entitlement.NewVerifier(whopClient, entitlement.Config{
		RequiredPass:     c.Whop.RequiredPass,
		RecommendedPlans: []string{c.Whop.FreePlanID, c.Whop.PaidPlanID},
		Timeout:          c.EntitlementTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create entitlement verifier: %w", err)
	}

	analyzer, err := analyze.NewClient(c.AnalyzeEndpoint, httpClient)
	if err != nil {
		return err
	}

	jar := membership.NewJar(c.MembershipMaxAge, !c.InsecureCookies)

	auth, err := login.NewWhop(whopClient, sessionStore, jar, login.Config{
		CallbackURL:   c.CallbackURL,
		SessionSecret: []byte(c.SessionSecret),
		SessionTTL:    c.SessionTTL,
		Secure:        !c.InsecureCookies,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Whop sign-in: %w", err)
	}

	// Build assets for UI
	assetsCfg := assets.DefaultConfig()
	pipeline, err := assets.NewWithTemplateFS(assetsCfg, website.Templates, website.TemplatePattern, nil)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	if c.SkipBuild {
		err = pipeline.LoadMetadata()
	} else {
		err = pipeline.Build()
	}
	if err != nil {
		return fmt.Errorf("failed to prepare js assets: %w", err)
	}

	srv, err := website.NewServer(pipeline, verifier, jar, analyzer, whopClient, website.Config{
		FreePlanID: c.Whop.FreePlanID,
		PaidPlanID: c.Whop.PaidPlanID,
	})
	if err != nil {
		return err
	}

	handler := website.NewRouter(srv, auth, website.RouterConfig{
		PublicDir:   assetsCfg.OutputDir,
		CORSOrigins: c.CORSOrigins,
		Logger:      log,
	})

	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "readpilot")
	}

	tls := c.Cert != "" && c.Key != ""
	if tls {
		if _, err := os.Stat(c.Cert); err != nil {
			return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
		}
		if _, err := os.Stat(c.Key); err != nil {
			return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
		}
	} else {
		handler = withH2C(handler)
	}

	log.Info().Str("addr", c.Listen).Bool("tls", tls).Str("store", c.StoreType).Msg("Starting HTTP server")
	return runServer(ctx, configureHTTPServer(c.Listen, handler), c.Cert, c.Key)
}

func (c *WebsiteCmd) createSessionStore(ctx context.Context) (store.SessionStore, func(), error) {
	log := zlog.Ctx(ctx)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, err
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session store pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info().Msg("Using PostgreSQL session store")
		return postgresstore.NewSessionStore(pool), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory session store")
		return memorystore.NewSessionStore(), func() {}, nil
	}
}
