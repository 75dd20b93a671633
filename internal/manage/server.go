// Package manage exposes host registration to the management app over a
// loopback websocket.
package manage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
	"github.com/scriptbridge/sb-broker/internal/registration"
)

const (
	writeTimeout    = 10 * time.Second
	maxMessageBytes = 1 << 20
)

// Server answers management requests, one result per request.
type Server struct {
	backend registration.Backend
	dir     hostdir.Directory
	logger  *zap.Logger

	upgrader websocket.Upgrader
}

// NewServer creates a management server.
func NewServer(backend registration.Backend, dir hostdir.Directory, logger *zap.Logger) *Server {
	s := &Server{backend: backend, dir: dir, logger: logger}
	s.upgrader = websocket.Upgrader{CheckOrigin: loopbackOrigin}
	return s
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("management channel listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP upgrades the connection and runs its message loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	logger := s.logger.With(
		zap.String("remote", r.RemoteAddr),
		zap.String("origin", r.Header.Get("Origin")))
	logger.Info("management client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read error", zap.Error(err))
			}
			return
		}

		result := s.Handle(data)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(result); err != nil {
			logger.Warn("write error", zap.Error(err))
			return
		}
	}
}

// Handle decodes and executes one request.
func (s *Server) Handle(data []byte) protocol.ManageResult {
	var req protocol.ManageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.ManageResult{
			Type:      protocol.TypeResult,
			RequestID: uuid.NewString(),
			Message:   fmt.Sprintf("invalid request: %v", err),
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	result := s.dispatch(req)
	result.Type = protocol.TypeResult
	result.RequestID = req.RequestID
	s.logger.Info("management request",
		zap.String("request_id", req.RequestID),
		zap.String("type", req.Type),
		zap.Bool("success", result.Success),
		zap.String("message", result.Message))
	return result
}

func (s *Server) dispatch(req protocol.ManageRequest) protocol.ManageResult {
	switch req.Type {
	case protocol.TypeInstall:
		def, fromHostsFile, err := s.definition(req)
		if err != nil {
			return fail(err)
		}
		path, err := s.backend.Install(def, registration.InstallOptions{MarkExecutable: fromHostsFile})
		if err != nil {
			return fail(err)
		}
		return protocol.ManageResult{
			Success:   true,
			Message:   fmt.Sprintf("Installed %s", def.HostName),
			Path:      path,
			Installed: boolPtr(true),
		}

	case protocol.TypeUninstall:
		name := req.HostName
		if name == "" && req.Host != nil {
			name = req.Host.HostName
		}
		if err := s.backend.Uninstall(name); err != nil {
			return fail(err)
		}
		return protocol.ManageResult{
			Success:   true,
			Message:   fmt.Sprintf("Uninstalled %s", name),
			Installed: boolPtr(false),
		}

	case protocol.TypeStatus:
		installed, err := s.backend.Status(req.HostName)
		if err != nil {
			return fail(err)
		}
		return protocol.ManageResult{Success: true, Installed: &installed}

	case protocol.TypeList:
		defs, err := s.dir.List()
		if err != nil {
			return fail(err)
		}
		hosts := make([]protocol.HostStatus, 0, len(defs))
		for _, def := range defs {
			installed, err := s.backend.Status(def.HostName)
			if err != nil {
				s.logger.Warn("status check failed", zap.String("host", def.HostName), zap.Error(err))
			}
			hosts = append(hosts, protocol.HostStatus{HostName: def.HostName, Installed: installed})
		}
		return protocol.ManageResult{Success: true, Hosts: hosts}

	default:
		return protocol.ManageResult{Message: fmt.Sprintf("unknown request type: %q", req.Type)}
	}
}

// definition takes the inline host when given, otherwise resolves the
// name from the hosts file. Inline scripts are never made executable.
func (s *Server) definition(req protocol.ManageRequest) (hostdir.Definition, bool, error) {
	if req.Host != nil {
		return hostdir.Definition{
			HostName:       req.Host.HostName,
			Description:    req.Host.Description,
			ScriptPath:     req.Host.ScriptPath,
			Interpreter:    req.Host.Interpreter,
			AllowedOrigins: req.Host.AllowedOrigins,
		}, false, nil
	}
	if req.HostName == "" {
		return hostdir.Definition{}, false, errors.New("install requires host or hostName")
	}
	def, err := s.dir.Resolve(req.HostName)
	return def, err == nil, err
}

func fail(err error) protocol.ManageResult {
	return protocol.ManageResult{Message: err.Error()}
}

func boolPtr(b bool) *bool { return &b }

// loopbackOrigin admits non-browser clients and pages served from loopback.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
