package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// EnvPrefix prefixes configuration environment variables. Nested keys use a
// double underscore: OPENAPI_TO_MCP_OAUTH2__CLIENT_ID sets oauth2.client-id.
const EnvPrefix = "OPENAPI_TO_MCP_"

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "openapi-to-mcp.yaml"

// Transports accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds server configuration
type Config struct {
	OpenAPI            string       `koanf:"openapi"`
	HostOverride       string       `koanf:"host-override"`
	BearerToken        string       `koanf:"bearer-token"`
	OAuth2             OAuth2Config `koanf:"oauth2"`
	Instructions       string       `koanf:"instructions"`
	ToolNamingStrategy string       `koanf:"tool-naming-strategy"`
	Transport          string       `koanf:"transport"`
	ServerPort         int          `koanf:"server-port"`
	EndpointPath       string       `koanf:"endpoint-path"`
	Verbose            bool         `koanf:"verbose"`
	DatabaseURL        string       `koanf:"database-url"`
}

// OAuth2Config is the oauth2 block. GrantType empty disables OAuth2.
type OAuth2Config struct {
	GrantType    string `koanf:"grant-type"`
	TokenURL     string `koanf:"token-url"`
	ClientID     string `koanf:"client-id"`
	ClientSecret string `koanf:"client-secret"`
	RefreshToken string `koanf:"refresh-token"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
}

func defaults() map[string]any {
	return map[string]any{
		"transport":     TransportStdio,
		"server-port":   8000,
		"endpoint-path": "/mcp",
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"host-override":        "host-override",
	"bearer-token":         "bearer-token",
	"o2":                   "oauth2.grant-type",
	"o2-token-url":         "oauth2.token-url",
	"o2-client-id":         "oauth2.client-id",
	"o2-client-secret":     "oauth2.client-secret",
	"o2-refresh-token":     "oauth2.refresh-token",
	"o2-username":          "oauth2.username",
	"o2-password":          "oauth2.password",
	"instructions":         "instructions",
	"tool-naming-strategy": "tool-naming-strategy",
	"transport":            "transport",
	"server-port":          "server-port",
	"endpoint-path":        "endpoint-path",
	"verbose":              "verbose",
	"database-url":         "database-url",
}

// BindFlags registers the configuration flags as persistent flags of cmd.
// -h is the host override, so help is only reachable as --help.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringP("config", "c", "", "Config file path (default: "+DefaultConfigFile+" when present)")
	flags.StringP("host-override", "h", "", "Base URL of the API, overrides the document's servers")
	flags.StringP("bearer-token", "b", "", "Static bearer token sent with every API request")
	flags.String("o2", "", "OAuth2 grant type: client_credentials, refresh_token or password")
	flags.String("o2-token-url", "", "OAuth2 token URL, defaults to the one in the document")
	flags.String("o2-client-id", "", "OAuth2 client id")
	flags.String("o2-client-secret", "", "OAuth2 client secret")
	flags.String("o2-refresh-token", "", "OAuth2 refresh token")
	flags.String("o2-username", "", "OAuth2 username")
	flags.String("o2-password", "", "OAuth2 password")
	flags.StringP("instructions", "i", "", "Server instructions, overrides x-mcp-instructions")
	flags.StringP("tool-naming-strategy", "s", "", "Tool naming strategy")
	flags.Bool("verbose", false, "Debug logging")
	flags.String("database-url", "", "PostgreSQL URL of the spec store")
	flags.Bool("help", false, "Help for "+cmd.Name())
}

// BindServeFlags registers the transport flags on cmd.
func BindServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("transport", TransportStdio, "Transport: stdio or http")
	flags.Int("server-port", 8000, "HTTP transport port")
	flags.String("endpoint-path", "/mcp", "HTTP transport MCP endpoint path")
}

// Load builds the configuration of cmd from, in increasing priority, the
// defaults, the config file, the environment and the flags that were set.
// A non-empty openapi argument wins over everything.
func Load(cmd *cobra.Command, openapi string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			configFile = DefaultConfigFile
		}
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, NewError(ErrorTypeConfiguration, "reading config file", err.Error())
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	flagsMap := buildFlagsMap(cmd)
	if openapi != "" {
		flagsMap["openapi"] = openapi
	}
	if len(flagsMap) > 0 {
		if err := k.Load(confmap.Provider(flagsMap, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, NewError(ErrorTypeConfiguration, "unmarshaling config", err.Error())
	}
	return &cfg, nil
}

// envKey turns OPENAPI_TO_MCP_OAUTH2__TOKEN_URL into oauth2.token-url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ReplaceAll(s, "_", "-")
}

func buildFlagsMap(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		switch flag.Value.Type() {
		case "bool":
			v, _ := cmd.Flags().GetBool(name)
			m[key] = v
		case "int":
			v, _ := cmd.Flags().GetInt(name)
			m[key] = v
		default:
			m[key] = flag.Value.String()
		}
	}
	return m
}

// Validate checks the settings every command needs. Naming strategy and grant
// type are checked by their parsers where they are used.
func (c *Config) Validate() error {
	if c.OpenAPI == "" {
		return NewError(ErrorTypeConfiguration, "no OpenAPI document given", "pass a file, URL or db:<name>")
	}

	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return NewError(ErrorTypeConfiguration,
			fmt.Sprintf("invalid transport: %s", c.Transport), "valid: stdio, http")
	}

	if c.Transport == TransportHTTP {
		if c.ServerPort <= 0 || c.ServerPort > 65535 {
			return NewError(ErrorTypeConfiguration, fmt.Sprintf("invalid server port: %d", c.ServerPort), "")
		}
		if !strings.HasPrefix(c.EndpointPath, "/") {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("invalid endpoint path: %s", c.EndpointPath), "must start with /")
		}
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// LogConfiguration logs the current configuration
func (c *Config) LogConfiguration(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("openapi", c.OpenAPI),
		zap.String("transport", c.Transport),
		zap.String("tool_naming_strategy", c.ToolNamingStrategy),
	}
	if c.HostOverride != "" {
		fields = append(fields, zap.String("host_override", c.HostOverride))
	}
	if c.BearerToken != "" {
		fields = append(fields, zap.String("bearer_token", maskSensitive(c.BearerToken)))
	}
	if c.OAuth2.GrantType != "" {
		fields = append(fields,
			zap.String("oauth2_grant_type", c.OAuth2.GrantType),
			zap.String("oauth2_token_url", c.OAuth2.TokenURL),
			zap.String("oauth2_client_id", c.OAuth2.ClientID))
	}
	if c.Transport == TransportHTTP {
		fields = append(fields, zap.String("addr", c.Addr()), zap.String("endpoint_path", c.EndpointPath))
	}
	if c.DatabaseURL != "" {
		fields = append(fields, zap.String("database_url", maskSensitive(c.DatabaseURL)))
	}
	logger.Info("Configuration loaded", fields...)
}

// maskSensitive masks sensitive parts of URLs and tokens for logging
func maskSensitive(s string) string {
	if len(s) > 20 {
		return s[:8] + "***" + s[len(s)-8:]
	}
	return "***"
}
