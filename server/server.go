// Package server exposes the session and connected-account lifecycle over
// HTTP. Handlers are thin: they decode, resolve the tenant, call a service
// and map the error taxonomy onto status codes.
package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/postloop/postloop/auth"
	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/internal/config"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/refresh"
	"github.com/postloop/postloop/tenants"
)

type Server struct {
	mux          *http.ServeMux
	routes       []string
	config       *config.Config
	auth         *auth.Service
	vault        *credentials.Vault
	orchestrator *refresh.Orchestrator
	resolver     *tenants.Resolver
	adapters     map[string]platforms.Adapter
}

func New(cfg *config.Config, authService *auth.Service, vault *credentials.Vault,
	orchestrator *refresh.Orchestrator, resolver *tenants.Resolver,
	adapters map[string]platforms.Adapter) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if authService == nil {
		return nil, errors.New("[server.New] auth service is required")
	}
	if vault == nil {
		return nil, errors.New("[server.New] credential vault is required")
	}
	if orchestrator == nil {
		return nil, errors.New("[server.New] refresh orchestrator is required")
	}
	if resolver == nil {
		return nil, errors.New("[server.New] tenant resolver is required")
	}
	if adapters == nil {
		adapters = map[string]platforms.Adapter{}
	}

	s := &Server{
		mux:          http.NewServeMux(),
		config:       cfg,
		auth:         authService,
		vault:        vault,
		orchestrator: orchestrator,
		resolver:     resolver,
		adapters:     adapters,
	}
	s.initRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// adapter returns the configured adapter for a stored provider name.
func (s *Server) adapter(provider string) (platforms.Adapter, bool) {
	a, ok := s.adapters[provider]
	return a, ok
}
