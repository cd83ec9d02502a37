package config

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	EnvEndpoint  = "RUNIT_API_ENDPOINT"
	EnvAPIKey    = "RUNIT_API_KEY"
	EnvProjectID = "RUNIT_PROJECT_ID"
)

const (
	documentsPath = "/documents/"
	subscribePath = "/documents/subscribe/"
)

var (
	ErrMissingEndpoint  = errors.New("API endpoint is required")
	ErrMissingAPIKey    = errors.New("API key is required")
	ErrMissingProjectID = errors.New("project ID is required")
)

// Options are the global command-line options. Every connection setting can
// also come from the environment or a .env file.
type Options struct {
	Endpoint    string        `long:"endpoint" env:"RUNIT_API_ENDPOINT" description:"Database API endpoint (e.g. https://api.example.com)"`
	APIKey      string        `long:"api-key" env:"RUNIT_API_KEY" description:"Project API key"`
	ProjectID   string        `long:"project" env:"RUNIT_PROJECT_ID" description:"Project ID"`
	Timeout     time.Duration `long:"timeout" env:"RUNITDB_TIMEOUT" default:"30s" description:"HTTP request timeout"`
	Debug       bool          `long:"debug" env:"RUNITDB_DEBUG" description:"Enable verbose debug output"`
	PersistLogs bool          `long:"persist-logs" env:"RUNITDB_PERSIST_LOGS" description:"Also write JSONL logs to the user cache directory"`
}

// Connection is the resolved endpoint/credential triple used by the SDK.
type Connection struct {
	Endpoint  string
	APIKey    string
	ProjectID string
}

type APIEndpoints struct {
	BaseURL      string
	DocumentsURL string
	SubscribeURL string
}

// LoadDotEnv reads .env from the working directory when it exists.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// NewParser returns a go-flags parser bound to opts. Commands are added by
// the caller.
func NewParser(opts *Options) *flags.Parser {
	LoadDotEnv()
	parser := flags.NewParser(opts, flags.Default)
	parser.ShortDescription = "runitdb document database client"
	return parser
}

// FromEnv reads the connection settings from the environment after loading
// .env.
func FromEnv() Connection {
	LoadDotEnv()
	return Connection{
		Endpoint:  strings.TrimSpace(os.Getenv(EnvEndpoint)),
		APIKey:    strings.TrimSpace(os.Getenv(EnvAPIKey)),
		ProjectID: strings.TrimSpace(os.Getenv(EnvProjectID)),
	}
}

func (o Options) Connection() Connection {
	return Connection{
		Endpoint:  strings.TrimSpace(o.Endpoint),
		APIKey:    strings.TrimSpace(o.APIKey),
		ProjectID: strings.TrimSpace(o.ProjectID),
	}
}

// Merge fills blank fields of c from fallback.
func (c Connection) Merge(fallback Connection) Connection {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = fallback.Endpoint
	}
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = fallback.APIKey
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		c.ProjectID = fallback.ProjectID
	}
	return c
}

func ValidateRequired(c Connection) error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return ErrMissingProjectID
	}
	return nil
}

func BuildEndpoints(rawBaseURL string) (APIEndpoints, error) {
	base, err := buildAPIBaseURL(rawBaseURL)
	if err != nil {
		return APIEndpoints{}, err
	}
	return APIEndpoints{
		BaseURL:      base,
		DocumentsURL: base + documentsPath,
		SubscribeURL: base + subscribePath,
	}, nil
}

func buildAPIBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrMissingEndpoint
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("expected absolute URL like https://api.example.com")
	}
	if !strings.EqualFold(parsed.Scheme, "http") && !strings.EqualFold(parsed.Scheme, "https") {
		return "", errors.New("endpoint scheme must be http or https")
	}

	// Absolute API paths resolve against the host root, so any pasted path is dropped.
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Path = ""
	parsed.RawPath = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.User = nil

	return strings.TrimRight(parsed.String(), "/"), nil
}
