package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

// User is a row from the users table. The password hash is never
// exposed outside this package.
type User struct {
	ID        int64
	Username  string
	Email     string
	Avatar    string
	Verified  bool
	Online    bool
	CreatedAt time.Time
	LastLogin *time.Time
}

const userColumns = `id, username, email, avatar, verified, online, create_time, last_login_time`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Avatar, &u.Verified,
		&u.Online, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// VerifyCredentials checks the password for a username and, on
// success, marks the user online and stamps last_login_time in the
// same transaction.
func (s *Store) VerifyCredentials(ctx context.Context, username, password string) (*User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning login transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var hash string
	row := tx.QueryRow(ctx,
		`SELECT `+userColumns+`, password FROM users WHERE username = $1`, username)
	var u User
	err = row.Scan(&u.ID, &u.Username, &u.Email, &u.Avatar, &u.Verified,
		&u.Online, &u.CreatedAt, &u.LastLogin, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET online = TRUE, last_login_time = now() WHERE id = $1`, u.ID); err != nil {
		return nil, fmt.Errorf("stamping login for user %d: %w", u.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing login transaction: %w", err)
	}

	u.Online = true
	return &u, nil
}

// Register creates a user with a bcrypt-hashed password and returns
// the new row.
func (s *Store) Register(ctx context.Context, username, password, email, avatar string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password, avatar, verified)
		 VALUES ($1, $2, $3, $4, TRUE)
		 RETURNING `+userColumns,
		username, email, string(hash), avatar)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("inserting user %q: %w", username, err)
	}

	s.logger.Info("registered user", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// FindByUsername returns the user with the given username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// FindByID returns the user with the given id.
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UsernameExists reports whether a username is taken.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username %q: %w", username, err)
	}
	return exists, nil
}

// EmailExists reports whether an email is already registered.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists, nil
}

// SetOnline updates the durable online flag.
func (s *Store) SetOnline(ctx context.Context, userID int64, online bool) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE users SET online = $2 WHERE id = $1`, userID, online); err != nil {
		return fmt.Errorf("setting online=%t for user %d: %w", online, userID, err)
	}
	return nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
