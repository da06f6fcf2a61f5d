// Package dispatch routes decoded wire frames to typed handlers. It
// owns the per-connection protocol loop: authentication state, the
// single-session-per-user rule, and live fan-out of pushed frames.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"unicode"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/email"
	"github.com/infodancer/chatd/internal/logging"
	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/pgstore"
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/session"
	"github.com/infodancer/chatd/internal/verify"
)

// Directory is the user-repository surface the dispatcher needs.
// Implemented by pgstore.Store.
type Directory interface {
	VerifyCredentials(ctx context.Context, username, password string) (*pgstore.User, error)
	Register(ctx context.Context, username, password, email, avatar string) (*pgstore.User, error)
	FindByUsername(ctx context.Context, username string) (*pgstore.User, error)
	FindByID(ctx context.Context, id int64) (*pgstore.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetOnline(ctx context.Context, userID int64, online bool) error
	ListUsers(ctx context.Context) ([]pgstore.User, error)
}

// FrameConn is a connection as the dispatcher sees it: a peer that can
// also be read from. Implemented by server.Conn.
type FrameConn interface {
	session.Peer
	ReadFrame() (*protocol.Frame, error)
}

// Session is the per-connection protocol state.
type Session struct {
	conn     FrameConn
	userID   int64
	username string
	authed   bool
}

type handlerFunc func(ctx context.Context, s *Session, f *protocol.Frame) error

// Dispatcher decodes frames and routes them to handlers.
type Dispatcher struct {
	core     *chat.Core
	registry *session.Registry
	users    Directory
	codes    *verify.Service
	mail     email.Gateway
	metrics  metrics.Collector
	logger   *slog.Logger

	handlers map[protocol.Type]handlerFunc

	// anonymous lists the request types an unauthenticated connection
	// may issue.
	anonymous map[protocol.Type]bool
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Core     *chat.Core
	Registry *session.Registry
	Users    Directory
	Codes    *verify.Service
	Mail     email.Gateway
	Metrics  metrics.Collector
	Logger   *slog.Logger
}

// New creates a dispatcher and registers all handlers.
func New(dc Config) *Dispatcher {
	logger := dc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := dc.Metrics
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	mail := dc.Mail
	if mail == nil {
		mail = email.NewNoopGateway(logger)
	}

	d := &Dispatcher{
		core:     dc.Core,
		registry: dc.Registry,
		users:    dc.Users,
		codes:    dc.Codes,
		mail:     mail,
		metrics:  collector,
		logger:   logger,
		anonymous: map[protocol.Type]bool{
			protocol.TypeLoginRequest:      true,
			protocol.TypeRegisterRequest:   true,
			protocol.TypeVerifyCodeRequest: true,
		},
	}

	d.handlers = map[protocol.Type]handlerFunc{
		protocol.TypeLoginRequest:      d.handleLogin,
		protocol.TypeLogoutRequest:     d.handleLogout,
		protocol.TypeHeartbeatRequest:  d.handleHeartbeat,
		protocol.TypeRegisterRequest:   d.handleRegister,
		protocol.TypeVerifyCodeRequest: d.handleVerifyCode,
		protocol.TypePrivateChat:       d.handlePrivateChat,
		protocol.TypeGroupChat:         d.handleGroupChat,
		protocol.TypeCreateGroup:       d.handleCreateGroup,
		protocol.TypeJoinGroup:         d.handleJoinGroup,
		protocol.TypeLeaveGroup:        d.handleLeaveGroup,
		protocol.TypeGetUserList:       d.handleGetUserList,
		protocol.TypeGetGroupList:      d.handleGetGroupList,
		protocol.TypeGetGroupMembers:   d.handleGetGroupMembers,
		protocol.TypeGetUserFriends:    d.handleGetUserFriends,
		protocol.TypeAddFriend:         d.handleAddFriend,
		protocol.TypeGetChatHistory:    d.handleGetChatHistory,
		protocol.TypeRecallMessage:     d.handleRecallMessage,
		protocol.TypeMarkMessageRead:   d.handleMarkMessageRead,
	}

	return d
}

// HandleConnection runs the protocol loop for one connection until the
// peer disconnects or the context is cancelled. Malformed frames get
// an ERROR response; only transport errors end the loop.
func (d *Dispatcher) HandleConnection(ctx context.Context, conn FrameConn) {
	logger := logging.FromContext(ctx)

	d.registry.AddConnection(conn)
	sess := &Session{conn: conn}
	defer d.disconnect(ctx, sess)

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) || errors.Is(err, protocol.ErrEmptyFrame) {
				d.writeError(sess, "Malformed frame")
				continue
			}
			logger.Debug("read loop ended", slog.String("error", err.Error()))
			return
		}

		d.metrics.FrameProcessed(f.Type.String())
		d.registry.TouchConn(conn)

		handler, ok := d.handlers[f.Type]
		if !ok {
			d.writeError(sess, "Unknown message type")
			continue
		}
		if !sess.authed && !d.anonymous[f.Type] {
			d.writeError(sess, "Not logged in")
			continue
		}

		if err := handler(ctx, sess, f); err != nil {
			logger.Error("handler failed",
				slog.String("type", f.Type.String()),
				slog.String("error", err.Error()),
			)
			d.writeError(sess, "Internal server error")
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// disconnect tears a connection's state down: registry, hot-tier
// presence, and the durable online flag.
func (d *Dispatcher) disconnect(ctx context.Context, s *Session) {
	userID, wasBound := d.registry.RemoveConnection(s.conn)
	if !wasBound {
		return
	}
	d.clearPresence(ctx, userID)
}

// EvictIdle is the supervisor's eviction callback: it clears presence
// for whatever user the swept peer was bound to.
func (d *Dispatcher) EvictIdle(ctx context.Context) func(p session.Peer) {
	return func(p session.Peer) {
		userID, wasBound := d.registry.RemoveConnection(p)
		if !wasBound {
			return
		}
		d.metrics.SessionEvicted("idle")
		d.clearPresence(ctx, userID)
	}
}

func (d *Dispatcher) clearPresence(ctx context.Context, userID int64) {
	if err := d.core.MarkOffline(ctx, userID); err != nil {
		d.logger.Error("clearing hot presence", "user_id", userID, "error", err.Error())
	}
	if err := d.users.SetOnline(ctx, userID, false); err != nil {
		d.logger.Error("clearing durable online flag", "user_id", userID, "error", err.Error())
	}
	d.logger.Info("user disconnected", "user_id", userID)
}

// writeError sends an ERROR frame; write failures end the connection
// on the next read, so they are only logged.
func (d *Dispatcher) writeError(s *Session, msg string) {
	f := protocol.New(protocol.TypeError).Set("errorMsg", msg)
	if err := s.conn.WriteFrame(f); err != nil {
		d.logger.Debug("writing error frame", "error", err.Error())
	}
}

// clientText renders a core error for the wire: first letter
// capitalized, text otherwise unchanged.
func clientText(err error) string {
	msg := err.Error()
	r := []rune(msg)
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}
