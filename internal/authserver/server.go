package authserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"code.kerpass.org/ticketauth/internal/credentials"
	"code.kerpass.org/ticketauth/internal/observability"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

// Server accepts auth server connections and serves envelope requests,
// one goroutine per connection.
type Server struct {
	cfg Config
	svc *Service
	lsn net.Listener
}

// NewServer returns a Server ready to Listen. Zero Config limits take their
// defaults, a zero read timeout or payload clamp would refuse everything.
func NewServer(cfg Config, svc *Service) *Server {
	cfg.applyDefaults()
	return &Server{cfg: cfg, svc: svc}
}

// Listen binds the configured address.
func (self *Server) Listen() error {
	lsn, err := net.Listen("tcp", self.cfg.Listen)
	if nil != err {
		return wrapError(err, "failed listening on %s", self.cfg.Listen)
	}
	self.lsn = lsn
	return nil
}

// Addr returns the bound address, which differs from the configured one when
// listening on port 0.
func (self *Server) Addr() string {
	if nil == self.lsn {
		return self.cfg.Listen
	}
	return self.lsn.Addr().String()
}

// Serve accepts connections until ctx is cancelled.
func (self *Server) Serve(ctx context.Context) error {
	if nil == self.lsn {
		err := self.Listen()
		if nil != err {
			return err
		}
	}
	log := observability.GetObservability(ctx).Log()
	log.Info("auth server listening", "addr", self.Addr())

	go func() {
		<-ctx.Done()
		self.lsn.Close()
	}()

	for {
		conn, err := self.lsn.Accept()
		if nil != err {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("failed Accept, got error", "error", err)
			continue
		}
		go self.handleConn(ctx, conn)
	}
}

// handleConn serves envelope requests until the peer disconnects, times out
// or sends an unframable request.
func (self *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := observability.GetObservability(ctx).Log().With(
		"conn", uuid.NewString(),
		"peer", conn.RemoteAddr().String(),
	)
	log.Debug("connection accepted")

	for {
		conn.SetReadDeadline(time.Now().Add(self.cfg.ReadTimeout()))
		req, err := wire.ReadRequest(conn, self.cfg.MaxPayload)
		if nil != err {
			if errors.Is(err, io.EOF) {
				log.Debug("peer disconnected")
				return
			}
			log.Warn("aborting connection, got error", "error", err)
			self.respond(conn, log, wire.Response{Version: wire.Version, Code: wire.CodeGeneralError})
			return
		}

		resp, abort := self.serveRequest(ctx, log, conn, req)
		if !self.respond(conn, log, resp) || abort {
			return
		}
	}
}

// serveRequest maps one request envelope to its response. The returned bool
// asks handleConn to drop the connection after responding, which framing &
// version failures do and service failures do not.
func (self *Server) serveRequest(ctx context.Context, log *slog.Logger, conn net.Conn, req wire.Request) (wire.Response, bool) {
	resp := wire.Response{Version: wire.Version, Code: wire.CodeGeneralError}

	if wire.Version != req.Version {
		log.Warn("rejecting request, unsupported version", "version", req.Version)
		return resp, true
	}
	payload, err := wire.DecodeRequestPayload(req.Code, req.Payload)
	if nil != err {
		log.Warn("rejecting request, got error", "code", req.Code, "error", err)
		return resp, true
	}

	switch req.Code {
	case wire.CodeRegisterClient:
		id, err := self.svc.RegisterClient(ctx, payload.(wire.RegisterClientReq))
		if errors.Is(err, credentials.ErrDuplicateName) {
			log.Info("rejected client registration, name already in use")
			resp.Code = wire.CodeRegisterClientFail
			return resp, false
		}
		if nil != err {
			log.Error("failed client registration, got error", "error", err)
			return resp, false
		}
		log.Info("registered client", "client", utils.HexBinary(id[:]).String())
		resp.Code = wire.CodeRegisterClientOK
		resp.Payload = wire.RegisterClientResp{ClientId: id}.Pack()

	case wire.CodeRegisterServer:
		id, err := self.svc.RegisterServer(ctx, payload.(wire.RegisterServerReq), peerIp(conn))
		if errors.Is(err, credentials.ErrDuplicateName) {
			log.Info("rejected server registration, name already in use")
			resp.Code = wire.CodeRegisterClientFail
			return resp, false
		}
		if nil != err {
			log.Error("failed server registration, got error", "error", err)
			return resp, false
		}
		log.Info("registered message server", "server", utils.HexBinary(id[:]).String())
		resp.Code = wire.CodeRegisterServerOK
		resp.Payload = wire.RegisterServerResp{ServerId: id}.Pack()

	case wire.CodeListServers:
		resp.Code = wire.CodeServerList
		resp.Payload = self.svc.ListServers().Pack()

	case wire.CodeGetSessionKey:
		skresp, err := self.svc.IssueSessionKey(ctx, req.SenderId, payload.(wire.SessionKeyReq))
		if nil != err {
			log.Warn("rejected session key request, got error", "error", err)
			return resp, false
		}
		log.Info(
			"issued session key",
			"client", utils.HexBinary(skresp.ClientId[:]).String(),
			"server", utils.HexBinary(skresp.Ticket.ServerId[:]).String(),
		)
		resp.Code = wire.CodeSessionKey
		resp.Payload = skresp.Pack()

	default:
		log.Warn("rejecting request, code not served here", "code", req.Code)
		return resp, false
	}

	return resp, false
}

// respond writes resp and reports whether the connection is still usable.
func (self *Server) respond(conn net.Conn, log *slog.Logger, resp wire.Response) bool {
	_, err := conn.Write(resp.Encode())
	if nil != err {
		log.Warn("failed writing response, got error", "error", err)
		return false
	}
	return true
}

// peerIp extracts the host part of the connection remote address.
func peerIp(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if nil != err {
		return conn.RemoteAddr().String()
	}
	return host
}
