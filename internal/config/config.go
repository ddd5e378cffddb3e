package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/assessmentreport/internal/platform/auth"
)

const (
	AuthModeDevelopment = "development"
	AuthModeStandalone  = "standalone"
	AuthModeExternal    = "external"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	AuthMode     string        `mapstructure:"AUTH_MODE"`
	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	TokenTTL     time.Duration `mapstructure:"TOKEN_TTL"`
	AuthIssuer   string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string        `mapstructure:"AUTH_AUDIENCE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ReportsDir          string `mapstructure:"REPORTS_DIR"`
	AssessmentConfigDir string `mapstructure:"ASSESSMENT_CONFIG_DIR"`
	SessionsFile        string `mapstructure:"SESSIONS_FILE"`

	ChromeBin       string        `mapstructure:"CHROME_BIN"`
	ChromeURL       string        `mapstructure:"CHROME_URL"`
	ChromeNoSandbox bool          `mapstructure:"CHROME_NO_SANDBOX"`
	RenderTimeout   time.Duration `mapstructure:"RENDER_TIMEOUT"`

	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	IngestBodyLimit  string        `mapstructure:"INGEST_BODY_LIMIT"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	BatchConcurrency int           `mapstructure:"BATCH_CONCURRENCY"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var defaults = map[string]interface{}{
	"PORT":              "5000",
	"ENV":               "development",
	"LOG_LEVEL":         "info",
	"AUTH_MODE":         "", // inferred, see ResolvedAuthMode
	"TOKEN_TTL":         "1h",
	"DB_MAX_CONNS":      10,
	"DB_MIN_CONNS":      2,
	"CORS_ORIGINS":      "http://localhost:3000",
	"REPORTS_DIR":       "./reports",
	"CHROME_NO_SANDBOX": true,
	"RENDER_TIMEOUT":    "60s",
	"REQUEST_TIMEOUT":   "90s",
	"BODY_LIMIT":        "1M",
	"INGEST_BODY_LIMIT": "10M",
	"RATE_LIMIT_RPS":    10,
	"RATE_LIMIT_BURST":  20,
	"BATCH_CONCURRENCY": 4,
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"AUTH_MODE", "JWT_SECRET", "TOKEN_TTL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS",
	"REPORTS_DIR", "ASSESSMENT_CONFIG_DIR", "SESSIONS_FILE",
	"CHROME_BIN", "CHROME_URL", "CHROME_NO_SANDBOX", "RENDER_TIMEOUT",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "INGEST_BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BATCH_CONCURRENCY",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env from the working directory, if present, overlaid by the
// process environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, nil
}

// splitList flattens comma separated entries, which arrive unsplit when the
// value came from a dotenv file.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UseDatabase reports whether sessions and users live in Postgres rather
// than in memory.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise:
//   - ENV=development → "development" (every request is an admin)
//   - AUTH_ISSUER set → "external" (tokens from an OIDC provider)
//   - otherwise       → "standalone" (tokens issued by /api/v1/auth)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	if c.AuthIssuer != "" {
		return AuthModeExternal
	}
	return AuthModeStandalone
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case AuthModeStandalone:
		if len(c.JWTSecret) < auth.MinSigningKeyLen {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes when AUTH_MODE is \"standalone\"", auth.MinSigningKeyLen)
		}
	case AuthModeExternal:
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set when AUTH_MODE is \"external\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"standalone\", or \"external\", got %q", mode)
	}

	// Development mode may still issue tokens when a secret is configured.
	if c.JWTSecret != "" && len(c.JWTSecret) < auth.MinSigningKeyLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", auth.MinSigningKeyLen)
	}

	for name, d := range map[string]time.Duration{
		"TOKEN_TTL":       c.TokenTTL,
		"RENDER_TIMEOUT":  c.RenderTimeout,
		"REQUEST_TIMEOUT": c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.BatchConcurrency)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
