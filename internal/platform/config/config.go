package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultOrderEventsTopic    = "order-events"
	defaultRuleEventsTopic     = "shipping-rule-events"
	defaultCurrency            = "MXN"
	defaultRuleCacheTTL        = 30 * time.Minute
	defaultRuleCacheSessions   = 10000
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultSecurityEnvironment = "local"
)

var defaultAdminRoles = []string{"admin", "staff"}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	PSP       PSPConfig
	Shipping  ShippingConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// IdempotencyTTL is how long a stored order response can be replayed.
	IdempotencyTTL  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topics domain events are published to.
type PubSubConfig struct {
	ProjectID        string
	EmulatorHost     string
	OrderEventsTopic string
	RuleEventsTopic  string
}

// PSPConfig collects payment provider credentials and checkout redirect targets.
type PSPConfig struct {
	StripeAPIKey       string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

// ShippingConfig holds store-wide shipping settings. Amounts are minor currency units.
type ShippingConfig struct {
	Currency              string
	FreeShippingThreshold int64
	RuleCacheTTL          time.Duration
	RuleCacheMaxSessions  int
	RequireStreet         bool
}

// SecurityConfig groups environment and authorisation settings.
type SecurityConfig struct {
	Environment      string
	AdminRoles       []string
	SecretsProjectID string
	SecretsProjects  map[string]string
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "PSP.StripeAPIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// ValidationError lists configuration fields that are missing or hold unusable values.
type ValidationError struct {
	issues []fieldIssue
}

type fieldIssue struct {
	field  string
	reason string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.issues))
	for _, issue := range e.issues {
		parts = append(parts, issue.field+" ("+issue.reason+")")
	}
	return fmt.Sprintf("config validation failed: %s", strings.Join(parts, ", "))
}

// Fields returns the offending field names in the order they were found.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.issues))
	for _, issue := range e.issues {
		out = append(out, issue.field)
	}
	return out
}

// Load assembles the configuration from defaults, the .env file, the process environment,
// and an explicit map, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	env := &envSource{explicit: options.envMap, system: options.useSystemEnv, dotenv: dotenv}

	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			IdempotencyTTL:  env.duration("API_SERVER_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.str("API_PUBSUB_PROJECT_ID", ""),
			EmulatorHost:     env.str("API_PUBSUB_EMULATOR_HOST", ""),
			OrderEventsTopic: env.str("API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
			RuleEventsTopic:  env.str("API_PUBSUB_RULE_EVENTS_TOPIC", defaultRuleEventsTopic),
		},
		PSP: PSPConfig{
			StripeAPIKey:       env.str("API_PSP_STRIPE_API_KEY", ""),
			CheckoutSuccessURL: env.str("API_PSP_CHECKOUT_SUCCESS_URL", ""),
			CheckoutCancelURL:  env.str("API_PSP_CHECKOUT_CANCEL_URL", ""),
		},
		Shipping: ShippingConfig{
			Currency:              strings.ToUpper(env.str("API_SHIPPING_CURRENCY", defaultCurrency)),
			FreeShippingThreshold: env.int64("API_SHIPPING_FREE_THRESHOLD", 0),
			RuleCacheTTL:          env.duration("API_SHIPPING_RULE_CACHE_TTL", defaultRuleCacheTTL),
			RuleCacheMaxSessions:  int(env.int64("API_SHIPPING_RULE_CACHE_MAX_SESSIONS", defaultRuleCacheSessions)),
			RequireStreet:         env.boolean("API_SHIPPING_REQUIRE_STREET", true),
		},
		Security: SecurityConfig{
			Environment:      strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			AdminRoles:       env.list("API_SECURITY_ADMIN_ROLES", defaultAdminRoles),
			SecretsProjectID: env.str("API_SECRETS_PROJECT_ID", ""),
			SecretsProjects:  ParseKeyValues(env.raw("API_SECRETS_PROJECTS")),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	resolved, err := resolveSecrets(ctx, options.secret, []secretField{
		{name: "PSP.StripeAPIKey", value: &cfg.PSP.StripeAPIKey},
	})
	if err != nil {
		return Config{}, err
	}

	if err := validate(cfg, env.problems); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config, parseProblems []string) error {
	var issues []fieldIssue
	check := func(ok bool, field, reason string) {
		if !ok {
			issues = append(issues, fieldIssue{field: field, reason: reason})
		}
	}

	check(cfg.Server.Port != "", "Server.Port", "required")
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID", "required")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID", "required")
	check(cfg.PubSub.OrderEventsTopic != "", "PubSub.OrderEventsTopic", "required")
	check(len(cfg.Shipping.Currency) == 3, "Shipping.Currency", "must be a three letter code")
	check(cfg.Shipping.FreeShippingThreshold >= 0, "Shipping.FreeShippingThreshold", "must not be negative")
	check(cfg.Shipping.RuleCacheTTL > 0, "Shipping.RuleCacheTTL", "must be positive")
	check(cfg.Shipping.RuleCacheMaxSessions > 0, "Shipping.RuleCacheMaxSessions", "must be positive")
	check(cfg.Server.IdempotencyTTL > 0, "Server.IdempotencyTTL", "must be positive")
	check(len(cfg.Security.AdminRoles) > 0, "Security.AdminRoles", "required")

	for _, problem := range parseProblems {
		key, reason, _ := strings.Cut(problem, ": ")
		issues = append(issues, fieldIssue{field: key, reason: reason})
	}

	if len(issues) > 0 {
		return &ValidationError{issues: issues}
	}
	return nil
}
