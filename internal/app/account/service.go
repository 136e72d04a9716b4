//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../../mocks/mock_account.go -package=mocks
/*
Package account handles user registration and password login.

Passwords are stored as bcrypt hashes; a successful login resolves to a user.Identity that the
session layer then signs into a token.
*/
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"fullchat/internal/app/db"
	dbc "fullchat/internal/app/db/sqlc"
	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUsernameTaken is returned when registering a username that already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidUsername is returned for usernames that are empty, too long or not alphanumeric.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidPassword is returned for empty passwords or passwords bcrypt cannot hash.
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	// usernameRules mirrors the validate tags on the REST request types.
	usernameRules = "required,alphanum,max=32"

	// bcrypt ignores input past 72 bytes, so longer passwords are refused.
	passwordRules = "required,max=72"
)

// UserQuerier is the subset of the generated queries the account service needs.
type UserQuerier interface {
	CreateUser(ctx context.Context, arg dbc.CreateUserParams) (dbc.User, error)
	GetUserByUsername(ctx context.Context, username string) (dbc.User, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (dbc.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// Service registers users and checks their passwords.
type Service struct {
	queries  UserQuerier
	cost     int
	validate *validator.Validate
	logger   zerolog.Logger

	// dummyHash is compared against when the username is unknown, so both failure paths cost a bcrypt round.
	dummyHash []byte
}

// NewService returns an account service. A cost of zero selects bcrypt.DefaultCost.
func NewService(queries UserQuerier, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	dummy, _ := bcrypt.GenerateFromPassword([]byte("fullchat-dummy-password"), cost)

	return &Service{
		queries:   queries,
		cost:      cost,
		validate:  validator.New(),
		logger:    logx.Component("Account"),
		dummyHash: dummy,
	}
}

// Register creates an account and returns its identity.
func (s *Service) Register(ctx context.Context, username, password string) (user.Identity, error) {
	if err := s.validate.Var(username, usernameRules); err != nil {
		return user.Identity{}, ErrInvalidUsername
	}
	if err := s.validate.Var(password, passwordRules); err != nil {
		return user.Identity{}, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	created, err := s.queries.CreateUser(ctx, dbc.CreateUserParams{
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			s.logger.Warn().Str("username", username).Msg("Registration conflict: username already exists.")
			return user.Identity{}, ErrUsernameTaken
		}
		return user.Identity{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("user_id", created.ID.String()).Str("username", username).Msg("User registered.")

	return identityOf(created), nil
}

// Login checks the password of username and returns the matching identity.
func (s *Service) Login(ctx context.Context, username, password string) (user.Identity, error) {
	found, err := s.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if !db.IsNotFound(err) {
			return user.Identity{}, fmt.Errorf("get user: %w", err)
		}

		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logger.Info().Str("username", username).Msg("Login failed: unknown user.")
		return user.Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		s.logger.Info().Str("username", username).Msg("Login failed: password mismatch.")
		return user.Identity{}, ErrInvalidCredentials
	}

	return identityOf(found), nil
}

// Lookup returns the identity of the user with the given id. ok is false when no such user exists.
func (s *Service) Lookup(ctx context.Context, id string) (identity user.Identity, ok bool, err error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return user.Identity{}, false, nil
	}

	found, err := s.queries.GetUserByID(ctx, pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		if db.IsNotFound(err) {
			return user.Identity{}, false, nil
		}
		return user.Identity{}, false, fmt.Errorf("get user: %w", err)
	}

	return identityOf(found), true, nil
}

// Empty reports whether no account exists yet.
func (s *Service) Empty(ctx context.Context) (bool, error) {
	count, err := s.queries.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count == 0, nil
}

func identityOf(u dbc.User) user.Identity {
	return user.Identity{ID: u.ID.String(), Username: u.Username}
}
