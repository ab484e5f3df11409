// Package mcptools exposes the gazetteer and historical archive as MCP
// tools, so a model-backed decider can look up routes, danger and events
// while reasoning about its next move.
package mcptools

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/talgya/mind-lab/internal/archive"
	"github.com/talgya/mind-lab/internal/geo"
)

// Server wraps the MCP SDK server over a router and an archive.
type Server struct {
	server  *sdk.Server
	router  *geo.Router
	archive *archive.Archive
	lang    language.Tag
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name, e.g. "mindlab"
	Version  string
	Router   *geo.Router
	Archive  *archive.Archive
	Language language.Tag // route description labels
}

// NewServer creates an MCP server with the mind-lab tools registered. A
// nil Router or Archive falls back to the built-in data.
func NewServer(cfg Config) *Server {
	if cfg.Router == nil {
		cfg.Router = geo.NewRouter(nil)
	}
	if cfg.Archive == nil {
		cfg.Archive = archive.Default()
	}
	if cfg.Language == language.Und {
		cfg.Language = language.Chinese
	}

	s := &Server{
		server: sdk.NewServer(&sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		router:  cfg.Router,
		archive: cfg.Archive,
		lang:    cfg.Language,
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	logrus.WithField("places", s.router.Gazetteer().Len()).Info("MCP server starting on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over transport. It returns once the
// session is established.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
