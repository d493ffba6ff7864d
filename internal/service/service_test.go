package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

// recordingPusher keeps every pushed message, keyed by token.
type recordingPusher struct {
	mu   sync.Mutex
	sent map[string][]notify.Message
}

func (p *recordingPusher) Push(_ context.Context, token string, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][]notify.Message)
	}
	p.sent[token] = append(p.sent[token], msg)
	return nil
}

func (p *recordingPusher) messages(token string) []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[token]
}

type testEnv struct {
	store      *sqlite.SQLiteStore
	media      *media.LocalStore
	pusher     *recordingPusher
	dispatcher *notify.Dispatcher
	identity   *IdentityService
	groups     *GroupService
	ledger     *LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mediaStore, err := media.NewLocalStore(filepath.Join(dir, "media"), "/media")
	require.NoError(t, err)

	pusher := &recordingPusher{}
	dispatcher := notify.NewDispatcher(store, pusher, nil)
	t.Cleanup(dispatcher.Wait)

	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	return &testEnv{
		store:      store,
		media:      mediaStore,
		pusher:     pusher,
		dispatcher: dispatcher,
		identity:   NewIdentityService(store, authenticator, jwtManager),
		groups:     NewGroupService(store, mediaStore),
		ledger:     NewLedgerService(store, mediaStore, dispatcher),
	}
}

// newUser registers a user and returns it. A non-empty token is stored as
// the user's push token.
func (e *testEnv) newUser(t *testing.T, name, pushToken string) *models.User {
	t.Helper()
	ctx := context.Background()

	session, err := e.identity.Register(ctx, name, name+"@example.com", "password123")
	require.NoError(t, err)
	if pushToken == "" {
		return session.User
	}
	user, err := e.identity.UpdatePushToken(ctx, session.User.ID, pushToken)
	require.NoError(t, err)
	return user
}

func (e *testEnv) newGroup(t *testing.T, creator *models.User, name string, memberIDs ...string) *models.GroupView {
	t.Helper()
	group, err := e.groups.Create(context.Background(), creator.ID, GroupInput{
		Name:      name,
		Type:      models.GroupTypeTrip,
		MemberIDs: memberIDs,
	}, nil)
	require.NoError(t, err)
	return group
}

func memberState(members []models.MemberView, userID string) (found, deleted bool) {
	for _, m := range members {
		if m.User.ID == userID {
			return true, m.IsDeleted
		}
	}
	return false, false
}

func pngFile(name string) media.File {
	body := "png-bytes"
	return media.File{
		Filename:    name,
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}
