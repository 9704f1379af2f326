package msgserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"code.kerpass.org/ticketauth/internal/observability"
	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

const (
	maxPayload  = 1 << 20
	readTimeout = 30 * time.Second
)

// Server accepts client connections and serves ticket presentations &
// encrypted messages, one goroutine per connection.
type Server struct {
	cfg      Config
	sessions *SessionManager
	lsn      net.Listener
}

// NewServer returns a Server for an already bootstrapped Config.
func NewServer(cfg Config) (*Server, error) {
	if !cfg.HasId || !cfg.HasKey {
		return nil, newError("server not registered, run Bootstrap first")
	}
	return &Server{cfg: cfg, sessions: NewSessionManager(cfg.Id, cfg.Key)}, nil
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

// Addr returns the bound address.
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
	log.Info("message server listening", "name", self.cfg.Name, "addr", self.Addr())

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

func (self *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := observability.GetObservability(ctx).Log().With(
		"conn", uuid.NewString(),
		"peer", conn.RemoteAddr().String(),
	)
	log.Debug("connection accepted")

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		req, err := wire.ReadRequest(conn, maxPayload)
		if nil != err {
			if errors.Is(err, io.EOF) {
				log.Debug("peer disconnected")
				return
			}
			log.Warn("aborting connection, got error", "error", err)
			self.respond(conn, log, wire.Response{Version: wire.Version, Code: wire.CodeGeneralError})
			return
		}

		resp, abort := self.serveRequest(log, req)
		if !self.respond(conn, log, resp) || abort {
			return
		}
	}
}

// serveRequest maps one request envelope to its response. Rejections keep the
// connection alive, the client restarts its handshake on the same socket.
func (self *Server) serveRequest(log *slog.Logger, req wire.Request) (wire.Response, bool) {
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
	case wire.CodePresentTicket:
		p := payload.(wire.PresentTicketReq)
		err = self.sessions.AcceptTicket(p.Ticket, p.Authenticator, req.SenderId)
		if nil != err {
			log.Warn("rejected ticket, got error", "error", err)
			return resp, false
		}
		log.Info("session established", "client", utils.HexBinary(req.SenderId[:]).String())
		resp.Code = wire.CodeTicketAccepted

	case wire.CodeSendMessage:
		p := payload.(wire.SendMessageReq)
		plaintext, err := self.sessions.HandleMessage(req.SenderId, p.IV, p.Ciphertext)
		if nil != err {
			log.Warn("rejected message, got error", "error", err)
			return resp, false
		}
		log.Info(
			"received message",
			"client", utils.HexBinary(req.SenderId[:]).String(),
			"message", string(plaintext),
		)
		resp.Code = wire.CodeMessageAccepted

	default:
		log.Warn("rejecting request, code not served here", "code", req.Code)
		return resp, false
	}

	return resp, false
}

func (self *Server) respond(conn net.Conn, log *slog.Logger, resp wire.Response) bool {
	_, err := conn.Write(resp.Encode())
	if nil != err {
		log.Warn("failed writing response, got error", "error", err)
		return false
	}
	return true
}
