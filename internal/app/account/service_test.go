package account_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"fullchat/internal/app/account"
	dbc "fullchat/internal/app/db/sqlc"
	"fullchat/internal/mocks"
)

func storedUser(t *testing.T, username, password string) dbc.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	return dbc.User{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Username:     username,
		PasswordHash: string(hash),
	}
}

func TestService_Register(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockUserQuerier(ctrl)
	service := account.NewService(queries, bcrypt.MinCost)

	bot := storedUser(t, "bot", "secret")

	// Given the insert succeeds with a hashed password
	queries.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, arg dbc.CreateUserParams) (dbc.User, error) {
			req.Equal("bot", arg.Username)
			req.NoError(bcrypt.CompareHashAndPassword([]byte(arg.PasswordHash), []byte("secret")))
			return bot, nil
		})

	// When bot registers
	identity, err := service.Register(context.Background(), "bot", "secret")

	// Then its identity is returned
	req.NoError(err)
	req.Equal(bot.ID.String(), identity.ID)
	req.Equal("bot", identity.Username)
}

func TestService_RegisterRejectsBadInput(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := account.NewService(mocks.NewMockUserQuerier(ctrl), bcrypt.MinCost)

	_, err := service.Register(context.Background(), "no spaces", "secret")
	req.ErrorIs(err, account.ErrInvalidUsername)

	_, err = service.Register(context.Background(), "", "secret")
	req.ErrorIs(err, account.ErrInvalidUsername)

	_, err = service.Register(context.Background(), "bot", "")
	req.ErrorIs(err, account.ErrInvalidPassword)
}

func TestService_RegisterTakenUsername(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockUserQuerier(ctrl)
	service := account.NewService(queries, bcrypt.MinCost)

	queries.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Return(dbc.User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := service.Register(context.Background(), "bot", "secret")

	req.ErrorIs(err, account.ErrUsernameTaken)
}

func TestService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockUserQuerier(ctrl)
	service := account.NewService(queries, bcrypt.MinCost)

	bot := storedUser(t, "bot", "secret")
	queries.EXPECT().GetUserByUsername(gomock.Any(), "bot").Return(bot, nil).AnyTimes()
	queries.EXPECT().GetUserByUsername(gomock.Any(), "ghost").Return(dbc.User{}, pgx.ErrNoRows).AnyTimes()
	queries.EXPECT().GetUserByUsername(gomock.Any(), "broken").Return(dbc.User{}, errors.New("conn reset")).AnyTimes()

	t.Run("correct password", func(t *testing.T) {
		req := require.New(t)
		identity, err := service.Login(context.Background(), "bot", "secret")
		req.NoError(err)
		req.Equal("bot", identity.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := service.Login(context.Background(), "bot", "nope")
		require.ErrorIs(t, err, account.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := service.Login(context.Background(), "ghost", "secret")
		require.ErrorIs(t, err, account.ErrInvalidCredentials)
	})

	t.Run("database failure", func(t *testing.T) {
		req := require.New(t)
		_, err := service.Login(context.Background(), "broken", "secret")
		req.Error(err)
		req.NotErrorIs(err, account.ErrInvalidCredentials)
	})
}

func TestService_Lookup(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockUserQuerier(ctrl)
	service := account.NewService(queries, bcrypt.MinCost)

	bot := storedUser(t, "bot", "secret")
	queries.EXPECT().GetUserByID(gomock.Any(), bot.ID).Return(bot, nil)
	queries.EXPECT().GetUserByID(gomock.Any(), gomock.Any()).Return(dbc.User{}, pgx.ErrNoRows)

	identity, ok, err := service.Lookup(context.Background(), bot.ID.String())
	req.NoError(err)
	req.True(ok)
	req.Equal("bot", identity.Username)

	_, ok, err = service.Lookup(context.Background(), uuid.NewString())
	req.NoError(err)
	req.False(ok)

	// malformed ids never reach the database
	_, ok, err = service.Lookup(context.Background(), "not-a-uuid")
	req.NoError(err)
	req.False(ok)
}

func TestService_Empty(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockUserQuerier(ctrl)
	service := account.NewService(queries, bcrypt.MinCost)

	gomock.InOrder(
		queries.EXPECT().CountUsers(gomock.Any()).Return(int64(0), nil),
		queries.EXPECT().CountUsers(gomock.Any()).Return(int64(1), nil),
	)

	empty, err := service.Empty(context.Background())
	req.NoError(err)
	req.True(empty)

	empty, err = service.Empty(context.Background())
	req.NoError(err)
	req.False(empty)
}
