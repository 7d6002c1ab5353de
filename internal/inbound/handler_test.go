package inbound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/membership"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/notify"
	"github.com/xiaot623/tgrelay/internal/presence"
	store "github.com/xiaot623/tgrelay/internal/repository"
	"github.com/xiaot623/tgrelay/internal/testutil"
)

type fixture struct {
	handler  *Handler
	platform *messenger.MockPlatform
	store    store.Store
	sink     *notify.Recorder
}

func newFixture(t *testing.T, platform *messenger.MockPlatform) *fixture {
	t.Helper()
	st := testutil.NewTestSQLiteStore(t)
	sink := &notify.Recorder{}
	members := membership.New(platform, st, membership.Config{ChannelID: -100}, zerolog.Nop())
	h := New(platform, st, sink, presence.NewStoreTracker(st, 0), classify.New(), members, zerolog.Nop())
	return &fixture{handler: h, platform: platform, store: st, sink: sink}
}

func (f *fixture) messages(t *testing.T, id int64) []domain.Message {
	t.Helper()
	msgs, err := f.store.ListRecent(context.Background(), id, 100)
	require.NoError(t, err)
	return msgs
}

var ada = domain.Contact{ID: 77, FirstName: "Ada", Username: "ada"}

func TestTextMessageFirstContact(t *testing.T) {
	f := newFixture(t, messenger.NewMockPlatform())
	ctx := context.Background()

	f.handler.HandleEvent(ctx, messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "hello"})

	msgs := f.messages(t, ada.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Body.Text)

	user, err := f.store.GetUser(ctx, ada.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ada", user.FullName)
	assert.Len(t, f.platform.CallsTo("SendPrompt"), 1)

	assert.Equal(t, 1, f.sink.Count("chat_77", domain.EventNewMessage))
	assert.Equal(t, 1, f.sink.Count(notify.DashboardRoom, domain.EventNewMessage))

	// Second contact: no second prompt.
	f.handler.HandleEvent(ctx, messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "again"})
	assert.Len(t, f.platform.CallsTo("SendPrompt"), 1)
	assert.Len(t, f.messages(t, ada.ID), 2)
}

func TestStartCommand(t *testing.T) {
	f := newFixture(t, messenger.NewMockPlatform())
	ctx := context.Background()
	start := messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "/start", Command: "start"}

	f.handler.HandleEvent(ctx, start)
	assert.Len(t, f.platform.CallsTo("SendPrompt"), 1)

	f.handler.HandleEvent(ctx, start)
	texts := f.platform.CallsTo("SendText")
	require.Len(t, texts, 1)
	assert.Equal(t, textWelcomeBack, texts[0].Text)

	assert.Empty(t, f.messages(t, ada.ID))
	assert.Empty(t, f.sink.Events())
}

func TestRecontactKeepsInviteLink(t *testing.T) {
	f := newFixture(t, messenger.NewMockPlatform())
	ctx := context.Background()

	f.handler.HandleEvent(ctx, messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "hi"})
	user, err := f.store.GetUser(ctx, ada.ID)
	require.NoError(t, err)
	link := user.InviteLink
	require.NotEmpty(t, link)

	renamed := ada
	renamed.FirstName = "Augusta"
	f.handler.HandleEvent(ctx, messenger.Event{Kind: messenger.EventMessage, From: renamed, ChatID: ada.ID, Text: "hi again"})

	user, err = f.store.GetUser(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, link, user.InviteLink)
	assert.Equal(t, "Ada", user.FullName)
}

func TestPhotoWithGIFHeaderIsGIF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("GIF89a"))
	}))
	defer srv.Close()

	platform := messenger.NewMockPlatform()
	platform.ResolveFileFunc = func(_ context.Context, fileID string) (*messenger.FileLocator, error) {
		return &messenger.FileLocator{Path: "photos/file_1.jpg", URL: srv.URL + "/photos/file_1.jpg"}, nil
	}
	f := newFixture(t, platform)

	f.handler.HandleEvent(context.Background(), messenger.Event{
		Kind: messenger.EventMessage, From: ada, ChatID: ada.ID,
		Attachment: &messenger.MediaRef{Slot: domain.SlotPhoto, FileID: "p1"},
	})

	msgs := f.messages(t, ada.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MediaKindGIF, msgs[0].Body.Kind)
	assert.Equal(t, srv.URL+"/photos/file_1.jpg", msgs[0].Body.URL)
}

func TestMediaResolveFailureStoresPlaceholder(t *testing.T) {
	platform := messenger.NewMockPlatform()
	platform.ResolveFileFunc = func(context.Context, string) (*messenger.FileLocator, error) {
		return nil, errors.New("Bad Request: file is too big")
	}
	f := newFixture(t, platform)

	f.handler.HandleEvent(context.Background(), messenger.Event{
		Kind: messenger.EventMessage, From: ada, ChatID: ada.ID,
		Attachment: &messenger.MediaRef{Slot: domain.SlotVoice, FileID: "v1"},
		Text:       "listen",
	})

	msgs := f.messages(t, ada.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.Placeholder(domain.MediaKindVoice), msgs[0].Body)
	assert.Equal(t, "listen", msgs[1].Body.Text)
}

func TestPublishFailureDoesNotLoseMessage(t *testing.T) {
	f := newFixture(t, messenger.NewMockPlatform())
	f.sink.Err = errors.New("hub buffer full")

	f.handler.HandleEvent(context.Background(), messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "still here"})
	assert.Len(t, f.messages(t, ada.ID), 1)
}

func TestJoinedCallback(t *testing.T) {
	f := newFixture(t, messenger.NewMockPlatform())

	f.handler.HandleEvent(context.Background(), messenger.Event{
		Kind: messenger.EventCallback, From: ada, CallbackID: "q1", CallbackData: membership.CallbackJoined,
	})
	assert.Len(t, f.platform.CallsTo("AnswerCallback"), 1)
	assert.Len(t, f.platform.CallsTo("SendText"), 1)
}

func TestHandledThroughLoop(t *testing.T) {
	platform := messenger.NewMockPlatform()
	f := newFixture(t, platform)
	source := messenger.NewChanSource(4)
	testutil.StartLoop(t, platform, messenger.WithSource(source), messenger.WithHandler(f.handler))

	source.Push(messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "one"})
	source.Push(messenger.Event{Kind: messenger.EventMessage, From: ada, ChatID: ada.ID, Text: "two"})

	require.Eventually(t, func() bool { return len(f.messages(t, ada.ID)) == 2 }, time.Second, 10*time.Millisecond)
	msgs := f.messages(t, ada.ID)
	assert.Equal(t, "one", msgs[0].Body.Text)
	assert.Equal(t, "two", msgs[1].Body.Text)
}
