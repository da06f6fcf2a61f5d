package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/pgstore"
	"github.com/infodancer/chatd/internal/protocol"
)

const loggedInElsewhere = "Your account logged in elsewhere"

func (d *Dispatcher) handleLogin(ctx context.Context, s *Session, f *protocol.Frame) error {
	username, _ := f.Get("username")
	password, _ := f.Get("password")
	if username == "" || password == "" {
		return s.conn.WriteFrame(protocol.New(protocol.TypeLoginResponse).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", "Missing credentials"))
	}

	u, err := d.users.VerifyCredentials(ctx, username, password)
	if errors.Is(err, pgstore.ErrInvalidCredentials) {
		d.metrics.AuthAttempt(false)
		return s.conn.WriteFrame(protocol.New(protocol.TypeLoginResponse).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", "Invalid username or password"))
	}
	if err != nil {
		return fmt.Errorf("verifying credentials: %w", err)
	}
	d.metrics.AuthAttempt(true)

	d.bindSession(s, u)

	if err := d.core.MarkOnline(ctx, u.ID); err != nil {
		return fmt.Errorf("marking user %d online: %w", u.ID, err)
	}

	// Drain before responding so the response can carry the count; the
	// parked messages are pushed right after it.
	parked, err := d.core.DrainOffline(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("draining offline queue for %d: %w", u.ID, err)
	}

	resp := protocol.New(protocol.TypeLoginResponse).
		Set("status", protocol.StatusOK).
		SetInt("userId", u.ID).
		Set("username", u.Username).
		Set("email", u.Email).
		Set("avatar", u.Avatar).
		SetInt("offlineMsgCount", int64(len(parked)))
	if err := s.conn.WriteFrame(resp); err != nil {
		return err
	}

	d.pushParked(ctx, s, parked)
	d.logger.Info("user logged in", "user_id", u.ID, "username", u.Username)
	return nil
}

// bindSession binds the user to this connection, kicking any previous
// session with a notification.
func (d *Dispatcher) bindSession(s *Session, u *pgstore.User) {
	evicted, had := d.registry.Bind(u.ID, s.conn)
	if had {
		notice := protocol.New(protocol.TypeError).Set("errorMsg", loggedInElsewhere)
		if err := evicted.WriteFrame(notice); err != nil {
			d.logger.Debug("notifying evicted session", "error", err.Error())
		}
		_ = evicted.Close()
		d.metrics.SessionEvicted("kick")
		d.logger.Info("kicked previous session", "user_id", u.ID)
	}

	s.authed = true
	s.userID = u.ID
	s.username = u.Username
}

// pushParked replays offline messages as push frames tagged
// offline=true.
func (d *Dispatcher) pushParked(ctx context.Context, s *Session, parked []chat.Message) {
	names := make(map[int64]string)
	for _, m := range parked {
		var f *protocol.Frame
		switch m.Kind {
		case chat.KindGroup:
			f = protocol.New(protocol.TypeGroupChat).SetInt("groupId", m.Group)
		default:
			f = protocol.New(protocol.TypePrivateChat)
		}
		f.SetInt("fromUserId", m.From).
			Set("fromUsername", d.usernameFor(ctx, names, m.From)).
			Set("content", m.Content).
			SetInt("timestamp", m.Timestamp).
			Set("messageId", m.ID).
			Set("offline", "true")

		if err := s.conn.WriteFrame(f); err != nil {
			d.logger.Debug("pushing offline message", "error", err.Error())
			return
		}
	}
	if len(parked) > 0 {
		d.metrics.OfflineDelivered(len(parked))
	}
}

// usernameFor resolves a sender's username with a per-call cache.
// Lookup failures degrade to an empty name rather than failing the
// delivery.
func (d *Dispatcher) usernameFor(ctx context.Context, cache map[int64]string, userID int64) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	u, err := d.users.FindByID(ctx, userID)
	if err != nil {
		d.logger.Warn("resolving username", "user_id", userID, "error", err.Error())
		cache[userID] = ""
		return ""
	}
	cache[userID] = u.Username
	return u.Username
}

func (d *Dispatcher) handleLogout(ctx context.Context, s *Session, f *protocol.Frame) error {
	userID, wasBound := d.registry.RemoveConnection(s.conn)
	if wasBound {
		d.clearPresence(ctx, userID)
	}
	// The connection stays open as anonymous; keep it visible to the
	// idle sweep.
	d.registry.AddConnection(s.conn)

	s.authed = false
	s.userID = 0
	s.username = ""

	return s.conn.WriteFrame(protocol.New(protocol.TypeLogoutResponse).
		Set("status", protocol.StatusOK))
}

func (d *Dispatcher) handleHeartbeat(ctx context.Context, s *Session, f *protocol.Frame) error {
	if err := d.core.RefreshPresence(ctx, s.userID); err != nil {
		return fmt.Errorf("refreshing presence for %d: %w", s.userID, err)
	}
	return s.conn.WriteFrame(protocol.New(protocol.TypeHeartbeatResponse).
		SetInt("timestamp", time.Now().UnixMilli()))
}

func (d *Dispatcher) handleRegister(ctx context.Context, s *Session, f *protocol.Frame) error {
	username, _ := f.Get("username")
	password, _ := f.Get("password")
	address, _ := f.Get("email")
	code, _ := f.Get("code")
	avatar, _ := f.Get("avatar")

	fail := func(msg string) error {
		return s.conn.WriteFrame(protocol.New(protocol.TypeRegisterResponse).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", msg))
	}

	if username == "" || password == "" || address == "" || code == "" {
		return fail("Missing required fields")
	}
	if !protocol.ValidValue(username) || !protocol.ValidValue(address) || !protocol.ValidValue(avatar) {
		return fail("Invalid characters in field")
	}

	if !d.codes.Verify(address, code) {
		return fail("Invalid or expired verification code")
	}

	u, err := d.users.Register(ctx, username, password, address, avatar)
	switch {
	case errors.Is(err, pgstore.ErrUsernameTaken):
		return fail("Username already exists")
	case errors.Is(err, pgstore.ErrEmailTaken):
		return fail("Email already exists")
	case err != nil:
		return fmt.Errorf("registering %q: %w", username, err)
	}

	if err := s.conn.WriteFrame(protocol.New(protocol.TypeRegisterResponse).
		Set("status", protocol.StatusOK).
		Set("username", u.Username).
		Set("email", u.Email)); err != nil {
		return err
	}

	go func() {
		if err := d.mail.SendWelcome(u.Email, u.Username); err != nil {
			d.logger.Warn("welcome mail failed", "user_id", u.ID)
		}
	}()

	// Registration logs the new account straight in.
	d.bindSession(s, u)
	if err := d.core.MarkOnline(ctx, u.ID); err != nil {
		return fmt.Errorf("marking user %d online: %w", u.ID, err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeLoginResponse).
		Set("status", protocol.StatusOK).
		SetInt("userId", u.ID).
		Set("username", u.Username).
		Set("email", u.Email).
		Set("avatar", u.Avatar).
		SetInt("offlineMsgCount", 0))
}

func (d *Dispatcher) handleVerifyCode(ctx context.Context, s *Session, f *protocol.Frame) error {
	address, _ := f.Get("email")
	if address == "" || !protocol.ValidValue(address) {
		return s.conn.WriteFrame(protocol.New(protocol.TypeVerifyCodeResponse).
			Set("status", protocol.StatusFailed).
			Set("message", "Missing or invalid email"))
	}

	exists, err := d.users.EmailExists(ctx, address)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if exists {
		return s.conn.WriteFrame(protocol.New(protocol.TypeVerifyCodeResponse).
			Set("status", protocol.StatusFailed).
			Set("message", "Email already exists"))
	}

	code, err := d.codes.Generate(address)
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	go func() {
		if err := d.mail.SendVerificationCode(address, code); err != nil {
			d.logger.Warn("verification mail failed")
		}
	}()

	return s.conn.WriteFrame(protocol.New(protocol.TypeVerifyCodeResponse).
		Set("status", protocol.StatusOK).
		Set("message", "Verification code sent"))
}
