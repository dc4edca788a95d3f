package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CFPROXY_"

// ErrInvalid is wrapped by every validation error returned from Load.
var ErrInvalid = errors.New("invalid config")

// Config is the process configuration. It is built once and never mutated
// afterwards.
type Config struct {
	CFHost string `yaml:"cfhost" env:"CFHOST"`
	CFIP   string `yaml:"cfip" env:"CFIP"`
	CFPort uint16 `yaml:"cfport" env:"CFPORT"`
	Token  string `yaml:"token" env:"TOKEN"`

	Host   string `yaml:"host" env:"HOST"`
	Port   uint16 `yaml:"port" env:"PORT"`
	User   string `yaml:"user" env:"USER"`
	Passwd string `yaml:"passwd" env:"PASSWD"`

	Log      string `yaml:"log" env:"LOG"`
	LogLevel string `yaml:"loglevel" env:"LOGLEVEL"`

	Upstream           string        `yaml:"upstream" env:"UPSTREAM"`
	DialTimeout        time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout" env:"NEGOTIATION_TIMEOUT"`
	TCPKeepAlive       string        `yaml:"tcp_keepalive" env:"TCP_KEEPALIVE"`
	DebugListen        string        `yaml:"debug_listen" env:"DEBUG_LISTEN"`
	TProxyListen       string        `yaml:"tproxy_listen" env:"TPROXY_LISTEN"`
	RequireAuth        bool          `yaml:"require_auth" env:"REQUIRE_AUTH"`
	ReplyAfterConnect  bool          `yaml:"reply_after_connect" env:"REPLY_AFTER_CONNECT"`

	// KeepAlive is parsed from TCPKeepAlive by Load.
	KeepAlive net.KeepAliveConfig `yaml:"-"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		CFIP:         "104.16.0.0",
		CFPort:       443,
		Host:         "127.0.0.1",
		Port:         4514,
		LogLevel:     "info",
		Upstream:     defaultUpstream(),
		DialTimeout:  10 * time.Second,
		TCPKeepAlive: "45:45:3",
	}
}

// ListenAddr is the SOCKS5 bind address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Load builds the configuration from args (without the program name) and
// the environment. It returns pflag.ErrHelp when help was requested.
func Load(args []string) (*Config, error) {
	var configPath, envFile string

	// The first pass only finds the file locations; flag values are applied
	// by the second pass on top of the other layers.
	scratch := Default()
	if err := newFlagSet(&scratch, &configPath, &envFile).Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		if err := loadFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := newFlagSet(&cfg, &configPath, &envFile).Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newFlagSet(cfg *Config, configPath, envFile *string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("cfproxy", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.StringVar(configPath, "config", "", "Config file path (JSON or YAML)")
	flags.StringVar(envFile, "env-file", ".env", "Environment file loaded before reading "+EnvPrefix+"* variables; missing file is ignored")

	flags.StringVar(&cfg.CFHost, "cfhost", cfg.CFHost, "Cloudflare workers/pages domain [required]")
	flags.StringVar(&cfg.CFIP, "cfip", cfg.CFIP, "Cloudflare IP to connect to")
	flags.Uint16Var(&cfg.CFPort, "cfport", cfg.CFPort, "Cloudflare port to connect to")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "Authentication token")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "SOCKS5 bind address")
	flags.Uint16Var(&cfg.Port, "port", cfg.Port, "SOCKS5 bind port")
	flags.StringVar(&cfg.User, "user", cfg.User, "SOCKS5 username")
	flags.StringVar(&cfg.Passwd, "passwd", cfg.Passwd, "SOCKS5 password")
	flags.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "Reject clients that do not offer username/password when credentials are set")
	flags.BoolVar(&cfg.ReplyAfterConnect, "reply-after-connect", cfg.ReplyAfterConnect, "Send the CONNECT reply only after the tunnel is established")
	flags.StringVar(&cfg.Log, "log", cfg.Log, "Log file path; empty logs to stdout")
	flags.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level (error/warn/info/debug/trace)")
	flags.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "How to reach the Cloudflare IP: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")
	flags.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for outbound DNS lookup and TCP connect")
	flags.DurationVar(&cfg.NegotiationTimeout, "negotiation-timeout", cfg.NegotiationTimeout, "Timeout for the SOCKS5 handshake and tunnel setup; 0 disables")
	flags.StringVar(&cfg.TCPKeepAlive, "tcp-keepalive", cfg.TCPKeepAlive, "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	flags.StringVar(&cfg.TProxyListen, "tproxy-listen", cfg.TProxyListen, "Transparent proxy listen address (Linux only, e.g. 127.0.0.1:1234). Empty disables.")
	flags.StringVar(&cfg.DebugListen, "debug-listen", cfg.DebugListen, "Debug HTTP listen address exposing /metrics and /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")

	return flags
}

func loadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	// YAML is a superset of JSON, so one decoder reads both.
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.CFHost == "" {
		return fmt.Errorf("%w: missing the required config 'cfhost'", ErrInvalid)
	}
	if c.CFIP == "" {
		return fmt.Errorf("%w: cfip is empty", ErrInvalid)
	}

	ka, err := ParseTCPKeepAlive(c.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("%w: tcp_keepalive: %w", ErrInvalid, err)
	}
	c.KeepAlive = ka

	if _, err := url.Parse(c.Upstream); err != nil {
		return fmt.Errorf("%w: upstream: %w", ErrInvalid, err)
	}
	if c.DialTimeout < 0 || c.NegotiationTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}
	return nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
