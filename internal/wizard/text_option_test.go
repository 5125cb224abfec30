package wizard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/gateway/gatewaytest"
)

func TestTextOption_AnswerThenAdvance(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	done, err := doc.Advance(ctx, env)
	require.NoError(t, err)
	assert.False(t, done)
	require.Equal(t, TextAsked, doc.Name.State)
	question := doc.Name.Question
	msg, ok := rec.Get(question)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "Name")
	assert.Equal(t, 0, env.Tokens.Len())

	answer := message("u1", "alice", "c1", "Night shift")
	ok, err = Dispatch(ctx, env, doc, MessageEvent(answer))
	require.NoError(t, err)
	require.True(t, ok)

	value, set := doc.Name.Get()
	assert.True(t, set)
	assert.Equal(t, "Night shift", value)
	assert.Contains(t, rec.Deleted, answer.Ref())

	msg, ok = rec.Get(question)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "Night shift")
	edit, ok := rec.Button(question, "Edit")
	require.True(t, ok)
	assert.Equal(t, TokenCustomID(testNS, actionEdit, doc.Name.Token), edit.CustomID)
	assert.Equal(t, 1, env.Tokens.Len())

	sent := len(rec.Sent)
	done, err = doc.Advance(ctx, env)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, rec.Sent, sent+1, "exactly one new question")
	assert.Equal(t, ChoiceAsked, doc.Kind.State)
}

func TestTextOption_AskIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	for i := 0; i < 3; i++ {
		done, err := doc.Advance(ctx, env)
		require.NoError(t, err)
		assert.False(t, done)
	}
	assert.Len(t, rec.Sent, 1)
}

func TestTextOption_EditResets(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	_, err := doc.Advance(ctx, env)
	require.NoError(t, err)
	_, err = Dispatch(ctx, env, doc, MessageEvent(message("u1", "alice", "c1", "Night shift")))
	require.NoError(t, err)

	question := doc.Name.Question
	token := doc.Name.Token
	edit, ok := rec.Button(question, "Edit")
	require.True(t, ok)

	ok, err = Dispatch(ctx, env, doc, InteractionEvent(click("alice", "c1", edit.CustomID)))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, TextUnset, doc.Name.State)
	assert.Empty(t, doc.Name.Value)
	assert.Contains(t, rec.Deleted, question)
	assert.False(t, env.Tokens.InUse(token))

	_, err = doc.Advance(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, TextAsked, doc.Name.State)
	assert.NotEqual(t, question, doc.Name.Question)
	msg, _ := rec.Get(doc.Name.Question)
	assert.Contains(t, msg.Content, "Name")
}

func TestTextOption_IgnoresOtherChannels(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	opt := NewText("Title")
	require.NoError(t, opt.Ask(ctx, env, ""))

	ok, err := opt.Receive(ctx, env, MessageEvent(message("u1", "alice", "elsewhere", "hello")))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, TextAsked, opt.State)

	ok, err = opt.Receive(ctx, env, MessageEvent(message("u2", "alice", "c1", "   ")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTextOption_AtMostOneMutation(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	doc := newTestDoc()

	// Both questions are outstanding in the same channel.
	require.NoError(t, doc.Name.Ask(ctx, env, "Name"))
	require.NoError(t, doc.Notes.Ask(ctx, env, "Notes"))

	ok, err := Dispatch(ctx, env, doc, MessageEvent(message("u1", "alice", "c1", "only once")))
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, doc.Name.IsSet())
	assert.False(t, doc.Notes.IsSet())
	assert.Equal(t, TextAsked, doc.Notes.State)
}

type rejectFilter struct{}

func (rejectFilter) Review(ctx context.Context, text string) (string, error) {
	if strings.Contains(text, "spam") {
		return "", errors.New("no spam please")
	}
	return strings.ToUpper(text), nil
}

func TestTextOption_Filter(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	env.Filter = rejectFilter{}
	opt := NewText("Title")
	require.NoError(t, opt.Ask(ctx, env, ""))

	ok, err := opt.Receive(ctx, env, MessageEvent(message("u1", "alice", "c1", "buy spam")))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TextAsked, opt.State)
	msg, _ := rec.Get(opt.Question)
	assert.Contains(t, msg.Content, "no spam please")
	assert.Equal(t, 0, env.Tokens.Len())

	ok, err = opt.Receive(ctx, env, MessageEvent(message("u2", "alice", "c1", "hello")))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "HELLO", opt.Value)
}

func TestTextOption_AttachmentAnswer(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	rec.Files["https://cdn/desc.txt"] = []byte("  from a file\n")
	env := newEnv(rec)
	opt := NewText("Description")
	require.NoError(t, opt.Ask(ctx, env, ""))

	msg := message("u1", "alice", "c1", "")
	msg.Attachments = []gateway.Attachment{
		{Filename: "pic.png", URL: "https://cdn/pic.png", ContentType: "image/png", Size: 10},
		{Filename: "desc.txt", URL: "https://cdn/desc.txt", ContentType: "text/plain; charset=utf-8", Size: 14},
	}
	ok, err := opt.Receive(ctx, env, MessageEvent(msg))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from a file", opt.Value)
}

func TestTextOption_Form(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	opt := &TextOption{Prompt: "Description", Form: true}
	require.NoError(t, opt.Ask(ctx, env, ""))
	require.Equal(t, 1, env.Tokens.Len())

	open, ok := rec.Button(opt.Question, "form")
	require.True(t, ok)
	ok, err := opt.Receive(ctx, env, InteractionEvent(click("alice", "c1", open.CustomID)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rec.Modals, 1)
	modal := rec.Modals[0]

	submit := gateway.ModalSubmit{
		Interaction: gateway.Interaction{UserID: "alice", ChannelID: "c1", CustomID: modal.CustomID},
		Fields:      map[string]string{modal.Inputs[0].CustomID: "A long\nanswer"},
	}
	ok, err = opt.Receive(ctx, env, ModalEvent(submit))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A long\nanswer", opt.Value)
	// The form token became the edit token.
	assert.Equal(t, 1, env.Tokens.Len())
	_, ok = rec.Button(opt.Question, "Edit")
	assert.True(t, ok)
}

func TestTextOption_CleanAndRestore(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	opt := NewText("Title")
	require.NoError(t, opt.Ask(ctx, env, ""))
	_, err := opt.Receive(ctx, env, MessageEvent(message("u1", "alice", "c1", "Hello")))
	require.NoError(t, err)

	opt.CleanForStorage(ctx, env)
	assert.Equal(t, 0, env.Tokens.Len())
	assert.True(t, opt.Question.IsZero())
	assert.True(t, opt.IsSet())

	env.Channel = "c2"
	require.NoError(t, opt.Restore(ctx, env))
	assert.Equal(t, "c2", opt.Question.ChannelID)
	assert.Equal(t, 1, env.Tokens.Len())
	msg, _ := rec.Get(opt.Question)
	assert.Contains(t, msg.Content, "Hello")
}

func TestTextOption_DeleteFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	rec := gatewaytest.NewRecorder()
	env := newEnv(rec)
	opt := NewText("Title")
	require.NoError(t, opt.Ask(ctx, env, ""))
	_, err := opt.Receive(ctx, env, MessageEvent(message("u1", "alice", "c1", "Hello")))
	require.NoError(t, err)

	edit := opt.Token

	rec.FailDelete = true
	opt.Delete(ctx, env)
	assert.Equal(t, TextUnset, opt.State)
	assert.True(t, env.Tokens.InUse(edit), "the Edit control is still live")

	rec.FailDelete = false
	require.NoError(t, opt.Ask(ctx, env, ""))
	_, err = opt.Receive(ctx, env, MessageEvent(message("u2", "alice", "c1", "Again")))
	require.NoError(t, err)
	assert.NotEqual(t, edit, opt.Token)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abcd…", TruncateText("abcdefgh", 5))
	assert.Equal(t, "éé…", TruncateText("éééééé", 3))
}
