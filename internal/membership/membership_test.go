package membership

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/testutil"
)

const channelID = -1001234

func TestWelcomeSendsPromptAndStoresLink(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestSQLiteStore(t)
	platform := messenger.NewMockPlatform()
	svc := New(platform, st, Config{ChannelID: channelID}, zerolog.Nop())

	c := domain.Contact{ID: 5, FirstName: "Ada", LastName: "Lovelace"}
	_, err := st.UpsertUser(ctx, &domain.User{ID: 5, FullName: c.FullName(), JoinDate: time.Now()})
	require.NoError(t, err)

	require.NoError(t, svc.Welcome(ctx, c))

	invites := platform.CallsTo("CreateInviteLink")
	require.Len(t, invites, 1)
	assert.Equal(t, int64(channelID), invites[0].ChatID)
	assert.Equal(t, "Ada Lovelace (5)", invites[0].Text)

	prompts := platform.CallsTo("SendPrompt")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Text, "https://t.me/+invite1")
	require.Len(t, prompts[0].Buttons, 2)
	assert.Equal(t, "https://t.me/+invite1", prompts[0].Buttons[0].URL)
	assert.Equal(t, CallbackJoined, prompts[0].Buttons[1].CallbackData)

	user, err := st.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+invite1", user.InviteLink)
}

func TestWelcomeInviteFailure(t *testing.T) {
	platform := messenger.NewMockPlatform()
	platform.InviteLinkFunc = func(context.Context, int64, string, int) (string, error) {
		return "", errors.New("Bad Request: not enough rights")
	}
	svc := New(platform, testutil.NewTestSQLiteStore(t), Config{ChannelID: channelID}, zerolog.Nop())

	require.NoError(t, svc.Welcome(context.Background(), domain.Contact{ID: 6, FirstName: "Bo"}))

	texts := platform.CallsTo("SendText")
	require.Len(t, texts, 1)
	assert.Equal(t, textInviteFailed, texts[0].Text)
	assert.Empty(t, platform.CallsTo("SendPrompt"))
}

func TestWelcomeDisabledWithoutChannel(t *testing.T) {
	platform := messenger.NewMockPlatform()
	svc := New(platform, testutil.NewTestSQLiteStore(t), Config{}, zerolog.Nop())

	require.NoError(t, svc.Welcome(context.Background(), domain.Contact{ID: 6}))
	assert.Empty(t, platform.Calls())
}

func TestJoined(t *testing.T) {
	platform := messenger.NewMockPlatform()
	svc := New(platform, testutil.NewTestSQLiteStore(t), Config{ChannelID: channelID}, zerolog.Nop())

	err := svc.Joined(context.Background(), messenger.Event{
		Kind: messenger.EventCallback, From: domain.Contact{ID: 8}, CallbackID: "cb1", CallbackData: CallbackJoined,
	})
	require.NoError(t, err)
	require.Len(t, platform.CallsTo("AnswerCallback"), 1)
	texts := platform.CallsTo("SendText")
	require.Len(t, texts, 1)
	assert.Equal(t, int64(8), texts[0].ChatID)
	assert.Contains(t, texts[0].Text, "Thank you for joining")
}

func TestApproveJoin(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestSQLiteStore(t)
	platform := messenger.NewMockPlatform()
	svc := New(platform, st, Config{ChannelID: channelID}, zerolog.Nop())

	ev := messenger.Event{
		Kind:       messenger.EventJoinRequest,
		From:       domain.Contact{ID: 9, FirstName: "Cy", Username: "cy"},
		ChatID:     channelID,
		ChatTitle:  "News",
		InviteLink: "https://t.me/+abc",
	}
	require.NoError(t, svc.ApproveJoin(ctx, ev))

	approvals := platform.CallsTo("ApproveJoinRequest")
	require.Len(t, approvals, 1)
	assert.Equal(t, fmt.Sprint(9), approvals[0].Text)

	user, err := st.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+abc", user.InviteLink)

	texts := platform.CallsTo("SendText")
	require.Len(t, texts, 1)
	assert.Equal(t, "🎉 Hi @cy, you are now a member of News!", texts[0].Text)
}

func TestApproveJoinAlreadyParticipant(t *testing.T) {
	platform := messenger.NewMockPlatform()
	platform.ApproveFunc = func(context.Context, int64, int64) error {
		return fmt.Errorf("approve: %w", messenger.ErrAlreadyParticipant)
	}
	svc := New(platform, testutil.NewTestSQLiteStore(t), Config{ChannelID: channelID}, zerolog.Nop())

	err := svc.ApproveJoin(context.Background(), messenger.Event{
		Kind: messenger.EventJoinRequest, From: domain.Contact{ID: 10}, ChatID: channelID,
	})
	assert.NoError(t, err)
	assert.Empty(t, platform.CallsTo("SendText"))
}

func TestApproveJoinIgnoresOtherChats(t *testing.T) {
	platform := messenger.NewMockPlatform()
	svc := New(platform, testutil.NewTestSQLiteStore(t), Config{ChannelID: channelID}, zerolog.Nop())

	require.NoError(t, svc.ApproveJoin(context.Background(), messenger.Event{
		Kind: messenger.EventJoinRequest, From: domain.Contact{ID: 10}, ChatID: -999,
	}))
	assert.Empty(t, platform.Calls())
}
