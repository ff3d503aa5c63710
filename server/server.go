// Package server wires the core components (configstore, vault, resolver,
// notifier) into the management and resolution HTTP surface described in
// spec §6. Request binding is intentionally thin JSON decode/encode; the
// HTTP transport itself is an external collaborator per spec §1 and carries
// no business logic of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/notify"
	"github.com/vatsan127/config-server/resolver"
	"github.com/vatsan127/config-server/vault"
)

// Server owns the HTTP listener and the wired core components.
type Server struct {
	configs  *configstore.Store
	vaults   *vault.Store
	resolve  *resolver.Resolver
	notifier *notify.Notifier

	mu         sync.RWMutex
	httpServer *http.Server
}

// New builds a Server over the already-constructed core components.
func New(configs *configstore.Store, vaults *vault.Store, resolve *resolver.Resolver, notifier *notify.Notifier) *Server {
	return &Server{configs: configs, vaults: vaults, resolve: resolve, notifier: notifier}
}

// Handler builds the route table described in spec §6. Exposed separately
// from Start so tests can drive handlers via httptest without binding a
// real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/namespace/create", s.handleNamespaceCreate)
	mux.HandleFunc("/namespace/list", s.handleNamespaceList)
	mux.HandleFunc("/namespace/files", s.handleNamespaceFiles)
	mux.HandleFunc("/namespace/delete", s.handleNamespaceDelete)
	mux.HandleFunc("/namespace/events", s.handleNamespaceEvents)
	mux.HandleFunc("/namespace/notify", s.handleNamespaceNotify)
	mux.HandleFunc("/config/create", s.handleConfigAction)
	mux.HandleFunc("/config/fetch", s.handleConfigAction)
	mux.HandleFunc("/config/update", s.handleConfigAction)
	mux.HandleFunc("/config/history", s.handleConfigAction)
	mux.HandleFunc("/config/changes", s.handleConfigChanges)
	mux.HandleFunc("/config/delete", s.handleConfigAction)
	mux.HandleFunc("/vault/get", s.handleVaultGet)
	mux.HandleFunc("/vault/update", s.handleVaultUpdate)
	mux.HandleFunc("/resolve", s.handleResolve)
	return mux
}

// Start serves the route table on addr until Shutdown is called or the
// listener fails. Matches the teacher's ListenAndServe/ErrServerClosed idiom.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	srv := s.httpServer
	s.mu.Unlock()

	logrus.WithField("addr", addr).Info("configserver: listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener and the notifier's worker
// pool, failing any notification left IN_PROGRESS across namespaces.
func (s *Server) Shutdown(ctx context.Context, namespaces []string) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.notifier.Shutdown(ctx, namespaces)
	return err
}

// writeError maps a cerrors.Error to its configured HTTP status and writes
// the standard {"code", "message"} body; any other error becomes a generic
// 500 INTERNAL_ERROR, per spec §7.
func writeError(w http.ResponseWriter, err error) {
	code := cerrors.CodeOf(err)
	status := code.HTTPStatus()
	writeJSON(w, status, map[string]string{"code": string(code), "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// timeoutContext bounds a request's core-component work; the management API
// has no client-driven cancellation per spec §5, so this is a defensive
// ceiling rather than a contract.
func timeoutContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Second)
}
