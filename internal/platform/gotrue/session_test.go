package gotrue

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebank-ledger/internal/domain/identity"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []identity.EventType
}

func (r *eventRecorder) listen(e identity.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Type)
}

func (r *eventRecorder) types() []identity.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]identity.EventType(nil), r.events...)
}

func TestSession_SignInAndOut(t *testing.T) {
	fake, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()

	rec := &eventRecorder{}
	unsubscribe := session.OnAuthStateChange(rec.listen)
	defer unsubscribe()

	signedIn, err := session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, fake.userID, signedIn.User.ID)

	current, err := session.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, signedIn, current)

	require.NoError(t, session.SignOut(context.Background()))

	current, err = session.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	assert.Equal(t, []identity.EventType{identity.EventSignedIn, identity.EventSignedOut}, rec.types())
	assert.Equal(t, 1, fake.count("/auth/v1/logout"))
}

func TestSession_SignOutClearsLocalStateOnServerError(t *testing.T) {
	fake, srv := newFakeAuthServer(t)
	fake.handle("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": "boom"})
	})
	session := newTestClient(srv, testSecret).NewSession()
	rec := &eventRecorder{}
	session.OnAuthStateChange(rec.listen)

	_, err := session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)

	assert.Error(t, session.SignOut(context.Background()))

	current, err := session.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, []identity.EventType{identity.EventSignedIn, identity.EventSignedOut}, rec.types())
}

func TestSession_SignUpAnnouncesOnFirstConfirmedRead(t *testing.T) {
	fake, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()
	rec := &eventRecorder{}
	session.OnAuthStateChange(rec.listen)

	user, signedUp, err := session.SignUp(context.Background(), "ana@example.com", "correct-horse", "Ana Souza")
	require.NoError(t, err)
	require.NotNil(t, signedUp)
	assert.Equal(t, fake.userID, user.ID)
	assert.Empty(t, rec.types())

	_, err = session.GetSession(context.Background())
	require.NoError(t, err)
	_, err = session.GetSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, rec.types())
	assert.Equal(t, 1, fake.count("/auth/v1/user"))
}

func TestSession_ExpiredSessionIsRefreshed(t *testing.T) {
	_, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()
	rec := &eventRecorder{}
	session.OnAuthStateChange(rec.listen)

	signedIn, err := session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)

	session.now = func() time.Time { return signedIn.ExpiresAt.Add(time.Second) }

	refreshed, err := session.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	assert.NotSame(t, signedIn, refreshed)

	assert.Equal(t, []identity.EventType{identity.EventSignedIn, identity.EventTokenRefreshed}, rec.types())
}

func TestSession_RefreshOnSignedOutDeviceSignsIn(t *testing.T) {
	_, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()
	rec := &eventRecorder{}
	session.OnAuthStateChange(rec.listen)

	_, err := session.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	_, err = session.Refresh(context.Background(), "unknown")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, rec.types())
}

func TestSession_GetUser(t *testing.T) {
	_, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()

	user, err := session.GetUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)

	user, err = session.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", user.FullName)
}

func TestSession_ListenerMayCallBack(t *testing.T) {
	_, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()

	var seen *identity.Session
	session.OnAuthStateChange(func(e identity.AuthEvent) {
		if e.Type == identity.EventSignedIn {
			seen, _ = session.GetSession(context.Background())
		}
	})

	signedIn, err := session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Same(t, signedIn, seen)
}

func TestSession_Unsubscribe(t *testing.T) {
	_, srv := newFakeAuthServer(t)
	session := newTestClient(srv, testSecret).NewSession()
	rec := &eventRecorder{}
	unsubscribe := session.OnAuthStateChange(rec.listen)
	unsubscribe()

	_, err := session.SignIn(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Empty(t, rec.types())
}
