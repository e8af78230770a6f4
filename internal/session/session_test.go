package session_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorylink/factorylink/internal/session"
)

func signToken(t *testing.T, uid, fid string) string {
	t.Helper()
	claims := jwt.MapClaims{}
	if uid != "" {
		claims["uid"] = uid
	}
	if fid != "" {
		claims["fid"] = fid
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestParseAccessToken(t *testing.T) {
	sess, err := session.ParseAccessToken(signToken(t, "u-1", "f-7"))
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Equal(t, "f-7", sess.FactoryID)
	assert.NotEmpty(t, sess.AccessToken)
}

func TestParseAccessToken_MissingClaims(t *testing.T) {
	_, err := session.ParseAccessToken(signToken(t, "", "f-7"))
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = session.ParseAccessToken(signToken(t, "u-1", ""))
	assert.ErrorIs(t, err, session.ErrMissingFactory)

	_, err = session.ParseAccessToken("not-a-jwt")
	assert.Error(t, err)
}

func TestStore_LoginLogout(t *testing.T) {
	store := session.NewStore()

	_, ok := store.Current()
	assert.False(t, ok)

	var changes []session.Change
	store.Subscribe(func(c session.Change) { changes = append(changes, c) })

	store.Login(session.Session{UserID: "u-1", FactoryID: "f-7"})
	sess, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "f-7", sess.FactoryID)

	store.Logout()
	_, ok = store.Current()
	assert.False(t, ok)

	require.Len(t, changes, 2)
	assert.Equal(t, session.StatusAuthenticated, changes[0].Status)
	assert.Equal(t, "u-1", changes[0].Session.UserID)
	assert.Equal(t, session.StatusUnauthenticated, changes[1].Status)
	assert.Empty(t, changes[1].Session.UserID)
}

func TestStore_LoginWithToken(t *testing.T) {
	store := session.NewStore()

	sess, err := store.LoginWithToken(signToken(t, "u-2", "f-3"))
	require.NoError(t, err)
	assert.Equal(t, "u-2", sess.UserID)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "f-3", current.FactoryID)
}

func TestStore_LoginWithToken_InvalidLeavesStateUntouched(t *testing.T) {
	store := session.NewStore()
	_, err := store.LoginWithToken("garbage")
	require.Error(t, err)

	_, ok := store.Current()
	assert.False(t, ok)
}

func TestStore_Unsubscribe(t *testing.T) {
	store := session.NewStore()

	var got int
	unsubscribe := store.Subscribe(func(session.Change) { got++ })

	store.Login(session.Session{UserID: "u-1", FactoryID: "f-1"})
	unsubscribe()
	store.Logout()

	assert.Equal(t, 1, got)
}
