package wizard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/gateway/gatewaytest"
)

// complete drives the session of user in channel until the Submit control
// shows up, picking choice A.
func complete(t *testing.T, ctx context.Context, m *Manager[*testDoc], rec *gatewaytest.Recorder, user, channel string) gateway.Button {
	t.Helper()
	for i := 0; i < 10; i++ {
		ref, msg := rec.Last()
		require.Equal(t, channel, ref.ChannelID)
		if b, ok := rec.Button(ref, "Submit"); ok {
			return b
		}
		var ok bool
		var err error
		if len(msg.Rows) > 0 && len(msg.Rows[0]) == 3 {
			ok, err = m.HandleInteraction(ctx, click(user, channel, msg.Rows[0][0].CustomID))
		} else {
			ok, err = m.HandleMessage(ctx, message("reply", user, channel, "answer"))
		}
		require.NoError(t, err)
		require.True(t, ok)
	}
	t.Fatal("no preview was posted")
	return gateway.Button{}
}

func TestManager_StartSupersedes(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())

	first, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, message("u1", "alice", first, "Alice"))
	require.NoError(t, err)
	tokens, _ := m.TokensInUse(ctx)
	assert.Len(t, tokens, 5, "cancel, edit and three menu tokens")

	second, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, rec.Removed, first)
	assert.Empty(t, rec.Live(first))

	tokens, _ = m.TokensInUse(ctx)
	assert.Equal(t, []int{1}, tokens, "only the new session's cancel control")
	o, err := m.Overview(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, o.InProgress)
	assert.Equal(t, second, o.Channel)
	_, ok := rec.Find("Name")
	assert.True(t, ok, "the new session asks its first question")
}

func TestManager_IgnoresOtherUsersAndChannels(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())
	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)

	ok, err := m.HandleMessage(ctx, message("u1", "bob", channel, "hijack"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.HandleMessage(ctx, message("u2", "alice", "general", "wrong place"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_FinalizeAndEdit(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	submit := complete(t, ctx, m, rec, "alice", channel)

	ok, err := m.HandleInteraction(ctx, click("alice", channel, submit.CustomID))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Contains(t, rec.Removed, channel)
	tokens, _ := m.TokensInUse(ctx)
	assert.Empty(t, tokens)
	o, err := m.Overview(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, o.InProgress)
	require.Len(t, o.Submissions, 1)
	sub := o.Submissions[0]
	assert.Equal(t, "answer", sub.Summary)
	published, ok := rec.Get(sub.Message)
	require.True(t, ok)
	assert.Equal(t, "Preview: answer / a / answer", published.Content)

	// Reopen it: every answer is re-rendered and the preview comes back.
	editing, err := m.Edit(ctx, "alice", sub.Location)
	require.NoError(t, err)
	live := rec.Live(editing)
	require.Len(t, live, 5, "welcome, name, kind menu, notes and preview")
	nameRef := live[1]
	edit, ok := rec.Button(nameRef, "Edit")
	require.True(t, ok)

	ok, err = m.HandleInteraction(ctx, click("alice", editing, edit.CustomID))
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = rec.Find("Preview:")
	assert.True(t, ok, "published ad is still there")
	for _, ref := range rec.Live(editing) {
		_, hasSubmit := rec.Button(ref, "Submit")
		assert.False(t, hasSubmit, "preview is withdrawn while incomplete")
	}

	ok, err = m.HandleMessage(ctx, message("u9", "alice", editing, "Renamed"))
	require.NoError(t, err)
	require.True(t, ok)
	ref, _ := rec.Last()
	submit, ok = rec.Button(ref, "Submit")
	require.True(t, ok)

	_, err = m.HandleInteraction(ctx, click("alice", editing, submit.CustomID))
	require.NoError(t, err)

	o, _ = m.Overview(ctx, "alice")
	require.Len(t, o.Submissions, 1, "edited in place")
	assert.Equal(t, sub.Location, o.Submissions[0].Location)
	assert.Equal(t, "Renamed", o.Submissions[0].Summary)
	published, _ = rec.Get(sub.Message)
	assert.Equal(t, "Preview: Renamed / a / answer", published.Content)
}

// controlIDs lists the routing strings of every live control in channel.
func controlIDs(rec *gatewaytest.Recorder, channel string) []string {
	var ids []string
	for _, ref := range rec.Live(channel) {
		msg, _ := rec.Get(ref)
		for _, row := range msg.Rows {
			for _, b := range row {
				ids = append(ids, b.CustomID)
			}
		}
	}
	return ids
}

func TestManager_FinalizeClearsSharedChannel(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := NewManager[*testDoc](testNS, rec, newMemStore(), &testHooks{rec: rec, dm: true}, newTestDoc)

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	submit := complete(t, ctx, m, rec, "alice", channel)
	_, err = m.HandleInteraction(ctx, click("alice", channel, submit.CustomID))
	require.NoError(t, err)

	assert.NotContains(t, rec.Removed, channel, "a private chat outlives the session")
	assert.Empty(t, rec.Live(channel), "no control of the finished session is left")
	tokens, _ := m.TokensInUse(ctx)
	assert.Empty(t, tokens)
}

func TestManager_UndeletedControlsKeepTheirTokens(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := NewManager[*testDoc](testNS, rec, newMemStore(), &testHooks{rec: rec, dm: true}, newTestDoc)

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	submit := complete(t, ctx, m, rec, "alice", channel)
	stale := controlIDs(rec, channel)
	require.NotEmpty(t, stale)

	rec.FailDelete = true
	_, err = m.HandleInteraction(ctx, click("alice", channel, submit.CustomID))
	require.NoError(t, err)
	rec.FailDelete = false

	orphaned, _ := m.TokensInUse(ctx)
	assert.Len(t, orphaned, len(stale), "every surviving control keeps its token")

	second, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, channel, second)
	ok, err := m.HandleMessage(ctx, message("u1", "alice", channel, "Bob"))
	require.NoError(t, err)
	require.True(t, ok)

	for _, id := range stale {
		ok, err := m.HandleInteraction(ctx, click("alice", channel, id))
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
	o, _ := m.Overview(ctx, "alice")
	assert.True(t, o.InProgress, "the old Cancel does not abandon the new session")
	name, set := m.state.Sessions["alice"].Doc.Name.Get()
	assert.True(t, set)
	assert.Equal(t, "Bob", name)
}

// gatedTransport blocks the first Edit until gate is closed.
type gatedTransport struct {
	*gatewaytest.Recorder
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedTransport) Edit(ctx context.Context, ref gateway.MessageRef, msg gateway.OutgoingMessage) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.Recorder.Edit(ctx, ref, msg)
}

func TestManager_EventsAreSerialized(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())
	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)

	gated := &gatedTransport{Recorder: rec, entered: make(chan struct{}), gate: make(chan struct{})}
	m.Transport = gated

	first := make(chan bool, 1)
	go func() {
		ok, _ := m.HandleMessage(ctx, message("u1", "alice", channel, "Alice"))
		first <- ok
	}()
	<-gated.entered

	second := make(chan bool, 1)
	go func() {
		ok, _ := m.HandleMessage(ctx, message("u2", "alice", channel, "Eve"))
		second <- ok
	}()
	select {
	case <-second:
		t.Fatal("second event ran while the first one was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.gate)
	assert.True(t, <-first)
	assert.False(t, <-second, "the menu asked after the first answer does not take text")
	name, _ := m.state.Sessions["alice"].Doc.Name.Get()
	assert.Equal(t, "Alice", name)
}

func TestManager_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	store := newMemStore()
	m := newTestManager(rec, store)

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, message("u1", "alice", channel, "Alice"))
	require.NoError(t, err)
	before, _ := m.TokensInUse(ctx)

	reloaded := newTestManager(rec, store)
	require.NoError(t, reloaded.Load(ctx))
	after, _ := reloaded.TokensInUse(ctx)
	assert.Equal(t, before, after)

	// The reloaded session keeps answering where it left off.
	ref, msg := rec.Last()
	ok, err := reloaded.HandleInteraction(ctx, click("alice", ref.ChannelID, msg.Rows[0][2].CustomID))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok = rec.Find("Notes")
	assert.True(t, ok)
}

func TestManager_PersistFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	store := newMemStore()
	m := newTestManager(rec, store)
	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)

	store.fail = true
	ok, err := m.HandleMessage(ctx, message("u1", "alice", channel, "Alice"))
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, ok)
	_, ok = rec.Find("Kind")
	assert.True(t, ok, "the in-memory tree moved on")
}

func TestManager_Abandon(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())

	require.NoError(t, m.Abandon(ctx, "nobody"))

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, message("u1", "alice", channel, "Alice"))
	require.NoError(t, err)

	require.NoError(t, m.Abandon(ctx, "alice"))
	assert.Contains(t, rec.Removed, channel)
	tokens, _ := m.TokensInUse(ctx)
	assert.Empty(t, tokens)
	o, _ := m.Overview(ctx, "alice")
	assert.False(t, o.InProgress)

	_, err = m.Resume(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Finalize(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_FinalizeIncomplete(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())
	_, err := m.Start(ctx, "alice")
	require.NoError(t, err)

	_, err = m.Finalize(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotComplete)
	o, _ := m.Overview(ctx, "alice")
	assert.True(t, o.InProgress)
}

func TestManager_PublishFailureIsReported(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())
	m.Hooks = failingPublish{&testHooks{rec: rec}}

	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	submit := complete(t, ctx, m, rec, "alice", channel)

	ok, err := m.HandleInteraction(ctx, click("alice", channel, submit.CustomID))
	assert.True(t, ok)
	assert.ErrorIs(t, err, gatewaytest.ErrInjected)

	_, reported := rec.Find("could not be published")
	assert.True(t, reported)
	o, _ := m.Overview(ctx, "alice")
	assert.True(t, o.InProgress, "session stays open for a retry")
}

type failingPublish struct {
	*testHooks
}

func (failingPublish) Publish(ctx context.Context, userID string, doc *testDoc, previous *Submission[*testDoc]) (gateway.MessageRef, error) {
	return gateway.MessageRef{}, gatewaytest.ErrInjected
}

func TestManager_DeleteSubmission(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	m := newTestManager(rec, newMemStore())
	channel, err := m.Start(ctx, "alice")
	require.NoError(t, err)
	submit := complete(t, ctx, m, rec, "alice", channel)
	sub, err := m.Finalize(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, submit.CustomID)

	require.NoError(t, m.DeleteSubmission(ctx, "alice", sub.Location))
	_, live := rec.Get(sub.Message)
	assert.False(t, live)
	assert.ErrorIs(t, m.DeleteSubmission(ctx, "alice", sub.Location), ErrNoSubmission)
	_, err = m.Edit(ctx, "alice", sub.Location)
	assert.ErrorIs(t, err, ErrNoSubmission)
}
