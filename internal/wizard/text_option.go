package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/bidibip/internal/gateway"
)

// MaxAnswerLength bounds a stored free-text answer, in runes. It leaves room
// for the prompt within a single chat message.
const MaxAnswerLength = 1800

// maxAttachmentSize bounds text attachments accepted as answers.
const maxAttachmentSize = 64 * 1024

const (
	actionEdit   = "edit"
	actionForm   = "form"
	actionAnswer = "answer"
	formField    = "value"
)

type TextState int

const (
	TextUnset TextState = iota
	TextAsked
	TextAnswered
)

// TextOption is a free-text slot. While asked, any message written in the
// editing channel answers it; once answered, the question is rewritten to
// show the value with an edit control that resets the slot.
//
// With Form set, the question also offers a modal so long answers can be
// typed in a proper text area. The token leased for that control becomes
// the edit token once the slot is answered.
type TextOption struct {
	State    TextState          `json:"state"`
	Prompt   string             `json:"prompt,omitempty"`
	Question gateway.MessageRef `json:"question"`
	Value    string             `json:"value,omitempty"`
	Token    int                `json:"token,omitempty"`
	Form     bool               `json:"form,omitempty"`
}

// NewText returns an unset slot that asks prompt when advanced on its own.
func NewText(prompt string) *TextOption {
	return &TextOption{Prompt: prompt}
}

func (t *TextOption) IsSet() bool {
	return t.State == TextAnswered
}

func (t *TextOption) Get() (string, bool) {
	return t.Value, t.State == TextAnswered
}

// Ask sends the question when the slot is unset. Asking an already asked or
// answered slot does nothing.
func (t *TextOption) Ask(ctx context.Context, env *Env, prompt string) error {
	if t.State != TextUnset {
		return nil
	}
	if prompt != "" {
		t.Prompt = prompt
	}

	token := 0
	if t.Form {
		token = env.lease(ctx)
	}
	ref, err := env.Transport.Send(ctx, env.Channel, gateway.OutgoingMessage{
		Content: questionContent(t.Prompt),
		Rows:    formRows(env.Namespace, token),
	})
	if err != nil {
		env.release(ctx, token)
		return fmt.Errorf("failed to ask %q: %w", t.Prompt, err)
	}

	t.State = TextAsked
	t.Question = ref
	t.Token = token
	env.Log.LogStep(ctx, env.Namespace, env.Channel, "ask", t.Prompt)
	return nil
}

func (t *TextOption) Receive(ctx context.Context, env *Env, ev Event) (bool, error) {
	switch {
	case ev.Message != nil:
		return t.TrySet(ctx, env, *ev.Message)
	case ev.Interaction != nil:
		if ok, err := t.TryEdit(ctx, env, *ev.Interaction); ok || err != nil {
			return ok, err
		}
		return t.TryOpenForm(ctx, env, *ev.Interaction)
	case ev.Modal != nil:
		return t.TrySubmit(ctx, env, *ev.Modal)
	}
	return false, nil
}

// TrySet answers an asked slot with a message from its channel. The raw
// message is deleted so the thread only shows the rewritten question.
func (t *TextOption) TrySet(ctx context.Context, env *Env, msg gateway.Message) (bool, error) {
	if t.State != TextAsked || msg.ChannelID != t.Question.ChannelID {
		return false, nil
	}
	text, err := answerText(ctx, env, msg)
	if err != nil {
		return false, err
	}
	if text == "" {
		return false, nil
	}
	env.deleteMessage(ctx, msg.Ref())
	return t.accept(ctx, env, text)
}

// TryEdit resets an answered slot when its edit control is clicked.
func (t *TextOption) TryEdit(ctx context.Context, env *Env, it gateway.Interaction) (bool, error) {
	token, ok := ParseToken(env.Namespace, actionEdit, it.CustomID)
	if !ok || t.State != TextAnswered || token != t.Token {
		return false, nil
	}
	env.Log.LogStep(ctx, env.Namespace, env.Channel, "reset", t.Prompt)
	t.Delete(ctx, env)
	return true, nil
}

// TryOpenForm opens the answer modal of an asked form slot.
func (t *TextOption) TryOpenForm(ctx context.Context, env *Env, it gateway.Interaction) (bool, error) {
	token, ok := ParseToken(env.Namespace, actionForm, it.CustomID)
	if !ok || t.State != TextAsked || token != t.Token {
		return false, nil
	}
	err := env.Transport.OpenModal(ctx, it, gateway.Modal{
		CustomID: TokenCustomID(env.Namespace, actionAnswer, token),
		Title:    TruncateText(t.Prompt, 45),
		Inputs: []gateway.TextInput{{
			CustomID:  formField,
			Label:     TruncateText(t.Prompt, 45),
			Paragraph: true,
			Required:  true,
		}},
	})
	if errors.Is(err, gateway.ErrUnsupported) {
		env.warn(ctx, "open_modal", err)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open answer form: %w", err)
	}
	return true, nil
}

// TrySubmit answers an asked form slot with the submitted modal.
func (t *TextOption) TrySubmit(ctx context.Context, env *Env, submit gateway.ModalSubmit) (bool, error) {
	token, ok := ParseToken(env.Namespace, actionAnswer, submit.CustomID)
	if !ok || t.State != TextAsked || token != t.Token {
		return false, nil
	}
	text := strings.TrimSpace(submit.Fields[formField])
	if text == "" {
		return true, nil
	}
	return t.accept(ctx, env, text)
}

func (t *TextOption) accept(ctx context.Context, env *Env, text string) (bool, error) {
	if env.Filter != nil {
		reviewed, err := env.Filter.Review(ctx, text)
		if err != nil {
			// Rejected: keep asking, tell the user why on the question itself.
			notice := gateway.OutgoingMessage{
				Content: questionContent(t.Prompt) + "\n:warning: " + err.Error(),
				Rows:    formRows(env.Namespace, t.Token),
			}
			if editErr := env.Transport.Edit(ctx, t.Question, notice); editErr != nil {
				env.warn(ctx, "edit", editErr)
			}
			return true, nil
		}
		text = reviewed
	}
	text = TruncateText(text, MaxAnswerLength)

	token := t.Token
	leased := false
	if token == 0 {
		token = env.lease(ctx)
		leased = true
	}
	if err := env.Transport.Edit(ctx, t.Question, answeredMessage(env.Namespace, t.Prompt, text, token)); err != nil {
		if leased {
			env.release(ctx, token)
		}
		return false, fmt.Errorf("failed to record answer: %w", err)
	}

	t.State = TextAnswered
	t.Value = text
	t.Token = token
	env.Log.LogStep(ctx, env.Namespace, env.Channel, "answer", t.Prompt)
	return true, nil
}

// Delete removes the question and frees its token; the slot is unset again.
func (t *TextOption) Delete(ctx context.Context, env *Env) {
	env.retire(ctx, t.Question, t.Token)
	*t = TextOption{Prompt: t.Prompt, Form: t.Form}
}

func (t *TextOption) CleanForStorage(ctx context.Context, env *Env) {
	env.retire(ctx, t.Question, t.Token)
	t.Token = 0
	t.Question = gateway.MessageRef{}
	if t.State == TextAsked {
		t.State = TextUnset
	}
}

// Restore posts the answered form of a slot that has no message.
func (t *TextOption) Restore(ctx context.Context, env *Env) error {
	if t.State != TextAnswered || !t.Question.IsZero() {
		return nil
	}
	token := env.lease(ctx)
	ref, err := env.Transport.Send(ctx, env.Channel, answeredMessage(env.Namespace, t.Prompt, t.Value, token))
	if err != nil {
		env.release(ctx, token)
		return fmt.Errorf("failed to restore %q: %w", t.Prompt, err)
	}
	t.Question = ref
	t.Token = token
	return nil
}

// Advance lets a lone TextOption act as a nested sub-document.
func (t *TextOption) Advance(ctx context.Context, env *Env) (bool, error) {
	if t.IsSet() {
		return true, nil
	}
	return false, t.Ask(ctx, env, t.Prompt)
}

func (t *TextOption) ReceiveEvent(ctx context.Context, env *Env, ev Event) (bool, error) {
	return t.Receive(ctx, env, ev)
}

func (t *TextOption) Dependencies() []SubStep {
	return nil
}

func answerText(ctx context.Context, env *Env, msg gateway.Message) (string, error) {
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text, nil
	}
	for _, a := range msg.Attachments {
		if !strings.HasPrefix(a.ContentType, "text/") || a.Size > maxAttachmentSize {
			continue
		}
		data, err := env.Transport.Download(ctx, a)
		if err != nil {
			return "", fmt.Errorf("failed to download %s: %w", a.Filename, err)
		}
		if !utf8.Valid(data) {
			continue
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

func questionContent(prompt string) string {
	return fmt.Sprintf("## ▶  %s\n> *Write your answer below this message*", prompt)
}

func answeredMessage(namespace, prompt, value string, token int) gateway.OutgoingMessage {
	return gateway.OutgoingMessage{
		Content: fmt.Sprintf("## ▶  %s\n%s", prompt, value),
		Rows: [][]gateway.Button{{{
			CustomID: TokenCustomID(namespace, actionEdit, token),
			Label:    "Edit",
			Style:    gateway.ButtonSecondary,
		}}},
	}
}

func formRows(namespace string, token int) [][]gateway.Button {
	if token == 0 {
		return nil
	}
	return [][]gateway.Button{{{
		CustomID: TokenCustomID(namespace, actionForm, token),
		Label:    "Answer in a form",
		Style:    gateway.ButtonSecondary,
	}}}
}

// TruncateText cuts s to at most n runes, marking the cut with an ellipsis.
func TruncateText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
