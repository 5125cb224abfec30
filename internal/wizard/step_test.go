package wizard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/bidibip/internal/gateway/gatewaytest"
)

// fill answers every question of a testDoc, picking B so the nested detail
// is asked too.
func fill(t *testing.T, ctx context.Context, rec *gatewaytest.Recorder, env *Env, doc *testDoc) {
	t.Helper()
	for i := 0; i < 10; i++ {
		done, err := doc.Advance(ctx, env)
		require.NoError(t, err)
		if done {
			return
		}
		ref, msg := rec.Last()
		if len(msg.Rows) > 0 && len(msg.Rows[0]) == 3 {
			ok, err := Dispatch(ctx, env, doc, InteractionEvent(click("alice", ref.ChannelID, msg.Rows[0][1].CustomID)))
			require.NoError(t, err)
			require.True(t, ok)
			continue
		}
		ok, err := Dispatch(ctx, env, doc, MessageEvent(message("reply", "alice", ref.ChannelID, "answer")))
		require.NoError(t, err)
		require.True(t, ok)
	}
	t.Fatal("form never completed")
}

func TestAdvance_OneQuestionPerCall(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	fill(t, ctx, rec, env, doc)

	// Name, Kind, B's detail and Notes: four questions, each asked once.
	assert.Len(t, rec.Sent, 4)
	value, _ := doc.Kind.Get()
	assert.True(t, value.Detail.IsSet())
}

func TestDispatch_ReachesNestedForms(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	_, err := doc.Advance(ctx, env)
	require.NoError(t, err)
	_, err = Dispatch(ctx, env, doc, MessageEvent(message("u1", "alice", "c1", "name")))
	require.NoError(t, err)
	_, err = doc.Advance(ctx, env)
	require.NoError(t, err)
	menu, _ := rec.Get(doc.Kind.Menu)
	_, err = Dispatch(ctx, env, doc, InteractionEvent(click("alice", "c1", menu.Rows[0][1].CustomID)))
	require.NoError(t, err)
	_, err = doc.Advance(ctx, env)
	require.NoError(t, err)

	// Only the nested detail is asked; the root has no slot left to take it.
	ok, err := Dispatch(ctx, env, doc, MessageEvent(message("u2", "alice", "c1", "deep")))
	require.NoError(t, err)
	require.True(t, ok)
	value, _ := doc.Kind.Get()
	detail, _ := value.Detail.Get()
	assert.Equal(t, "deep", detail)

	ok, err = Dispatch(ctx, env, doc, MessageEvent(message("u3", "alice", "c1", "nobody asked")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanPersistReload_IsDone(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()
	fill(t, ctx, rec, env, doc)

	CleanAll(ctx, env, doc)
	assert.Equal(t, 0, env.Tokens.Len())

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	reloaded := newTestDoc()
	require.NoError(t, json.Unmarshal(data, reloaded))

	fresh := gatewaytest.NewRecorder()
	done, err := reloaded.Advance(ctx, newEnv(fresh))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, fresh.Sent)

	preview, err := reloaded.Preview()
	require.NoError(t, err)
	assert.Equal(t, "Preview: answer / b / answer", preview)
}

func TestEvent_Kind(t *testing.T) {
	assert.Equal(t, "message", MessageEvent(message("1", "a", "c", "x")).Kind())
	assert.Equal(t, "interaction", InteractionEvent(click("a", "c", "x")).Kind())
	assert.Equal(t, "unknown", Event{}.Kind())
}
