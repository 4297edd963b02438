package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/auth"
	"github.com/fhoering/openapi-to-mcp/pkg/database"
	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/logging"
	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
	"github.com/fhoering/openapi-to-mcp/pkg/repository"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// app is what every document command starts from.
type app struct {
	cfg      *server.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	auth     auth.Configuration
	strategy openapi2mcp.NamingStrategy
	doc      *loader.Document
	catalog  *openapi2mcp.Catalog
}

// loadConfig reads and validates the configuration of cmd.
func loadConfig(cmd *cobra.Command, args []string) (*server.Config, error) {
	var openapi string
	if len(args) > 0 {
		openapi = args[0]
	}
	cfg, err := server.Load(cmd, openapi)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// authConfiguration converts the config file view of auth into the
// provider's.
func authConfiguration(cfg *server.Config) (auth.Configuration, error) {
	grant, err := auth.ParseGrantType(cfg.OAuth2.GrantType)
	if err != nil {
		return auth.Configuration{}, err
	}
	return auth.Configuration{
		BearerToken:  cfg.BearerToken,
		GrantType:    grant,
		TokenURL:     cfg.OAuth2.TokenURL,
		ClientID:     cfg.OAuth2.ClientID,
		ClientSecret: cfg.OAuth2.ClientSecret,
		RefreshToken: cfg.OAuth2.RefreshToken,
		Username:     cfg.OAuth2.Username,
		Password:     cfg.OAuth2.Password,
	}, nil
}

// newApp loads the configuration and the document, normalizes it and builds
// the catalog. A document without an absolute server URL is refused.
func newApp(cmd *cobra.Command, args []string) (*app, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logging.Must(cfg.Verbose), metrics: metrics.New()}
	cfg.LogConfiguration(a.logger)

	if a.auth, err = authConfiguration(cfg); err != nil {
		return nil, err
	}
	if a.strategy, err = openapi2mcp.ParseNamingStrategy(cfg.ToolNamingStrategy); err != nil {
		return nil, err
	}

	if a.doc, err = loadDocument(cmd.Context(), cfg, a.auth, a.logger); err != nil {
		return nil, err
	}
	openapi2mcp.Normalize(a.doc, cfg.HostOverride)
	for _, diag := range openapi2mcp.Lint(a.doc) {
		a.logger.Error("Document problem", zap.Stringer("diagnostic", diag))
	}
	if err := openapi2mcp.ValidateServerURL(a.doc); err != nil {
		return nil, err
	}

	a.auth = a.auth.Resolve(a.doc)
	a.logger.Info("Auth configured", auth.Describe(a.auth)...)

	a.catalog = openapi2mcp.BuildCatalog(a.doc, &openapi2mcp.ToolGenOptions{
		NamingStrategy: a.strategy,
		Logger:         a.logger,
		Metrics:        a.metrics,
	})
	return a, nil
}

// loadDocument fetches the configured document. The static bearer token is
// also sent when the source is a URL. db: sources open the spec store for
// the duration of the read.
func loadDocument(ctx context.Context, cfg *server.Config, authCfg auth.Configuration, logger *zap.Logger) (*loader.Document, error) {
	opts := []loader.Option{loader.WithLogger(logger), loader.WithBearerToken(authCfg.BearerToken)}

	if strings.HasPrefix(cfg.OpenAPI, loader.DatabaseScheme) && cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		opts = append(opts, loader.WithSpecSource(repository.NewOpenAPISpecRepository(db)))
	}

	doc, err := loader.NewSpecLoader(opts...).Load(ctx, cfg.OpenAPI)
	if err != nil {
		return nil, err
	}
	for _, diag := range doc.Diagnostics {
		logger.Warn("Document problem", zap.Stringer("diagnostic", diag))
	}
	return doc, nil
}

// newProxy builds the process-wide provider and the proxy using it.
func (a *app) newProxy() *openapi2mcp.Proxy {
	provider := auth.NewProvider(a.auth, &auth.Options{Logger: a.logger, Metrics: a.metrics})
	return openapi2mcp.NewProxy(a.catalog, provider, &openapi2mcp.ProxyOptions{
		Logger:  a.logger,
		Metrics: a.metrics,
	})
}
