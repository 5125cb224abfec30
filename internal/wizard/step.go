// Package wizard implements resumable chat forms: a tree of steps whose
// slots are asked one at a time as chat messages and button menus, answered
// by later events, and kept editable through routing tokens embedded in the
// controls they leave behind.
package wizard

import (
	"context"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/observability"
)

// AnswerFilter reviews a free-text answer before it is stored. It returns
// the text to keep, or an error whose message is shown to the user.
type AnswerFilter interface {
	Review(ctx context.Context, text string) (string, error)
}

// Env is everything a step needs to talk to the user of one session.
type Env struct {
	Transport gateway.Transport
	Tokens    *Allocator
	Namespace string
	// Channel is the editing channel of the session.
	Channel string
	Filter  AnswerFilter
	Log     *observability.Logger
}

func (e *Env) warn(ctx context.Context, op string, err error) {
	e.Log.LogTransportWarning(ctx, e.Namespace, e.Channel, op, err)
}

func (e *Env) lease(ctx context.Context) int {
	t := e.Tokens.Allocate()
	e.Log.LogToken(ctx, e.Namespace, "allocate", t)
	return t
}

func (e *Env) release(ctx context.Context, t int) {
	if t <= 0 {
		return
	}
	e.Tokens.Free(t)
	e.Log.LogToken(ctx, e.Namespace, "free", t)
}

// deleteMessage removes a wizard message and reports whether it is gone.
// Failures only orphan the message.
func (e *Env) deleteMessage(ctx context.Context, ref gateway.MessageRef) bool {
	if ref.IsZero() {
		return true
	}
	if err := e.Transport.Delete(ctx, ref); err != nil {
		e.warn(ctx, "delete", err)
		return false
	}
	return true
}

// retire deletes the message carrying tokens, then frees them. When the
// message survives, its controls are still clickable, so the tokens stay
// leased and are never handed out again.
func (e *Env) retire(ctx context.Context, ref gateway.MessageRef, tokens ...int) {
	if !e.deleteMessage(ctx, ref) {
		for _, t := range tokens {
			if t > 0 {
				e.Log.LogToken(ctx, e.Namespace, "orphan", t)
			}
		}
		return
	}
	for _, t := range tokens {
		e.release(ctx, t)
	}
}

// Event is one inbound event; exactly one field is set.
type Event struct {
	Message     *gateway.Message
	Interaction *gateway.Interaction
	Modal       *gateway.ModalSubmit
}

func MessageEvent(m gateway.Message) Event          { return Event{Message: &m} }
func InteractionEvent(it gateway.Interaction) Event { return Event{Interaction: &it} }
func ModalEvent(submit gateway.ModalSubmit) Event   { return Event{Modal: &submit} }

func (ev Event) Kind() string {
	switch {
	case ev.Message != nil:
		return "message"
	case ev.Interaction != nil:
		return "interaction"
	case ev.Modal != nil:
		return "modal"
	}
	return "unknown"
}

// Resetter is implemented by anything owning UI on the chat platform.
type Resetter interface {
	// Delete removes every outstanding message and frees every token owned
	// transitively. Failures are logged, never returned.
	Delete(ctx context.Context, env *Env)
	// CleanForStorage deletes the messages of a finalized document, frees
	// their tokens and drops the references. Values are kept.
	CleanForStorage(ctx context.Context, env *Env)
	// Restore re-renders answered slots into env.Channel, typically after a
	// cleaned document is reopened for editing.
	Restore(ctx context.Context, env *Env) error
}

// SubStep is one node of a step tree.
type SubStep interface {
	Resetter
	// Advance asks the first unanswered question, or reports done when the
	// whole subtree is complete. It is idempotent.
	Advance(ctx context.Context, env *Env) (bool, error)
	// ReceiveEvent applies ev to at most one of the node's own slots and
	// reports whether it did.
	ReceiveEvent(ctx context.Context, env *Env, ev Event) (bool, error)
	// Dependencies returns the nested sub-documents currently attached.
	Dependencies() []SubStep
}

// Slot is the common surface of TextOption and ChoiceOption.
type Slot interface {
	Resetter
	IsSet() bool
	Receive(ctx context.Context, env *Env, ev Event) (bool, error)
}

// Dispatch offers ev to every node of the tree, depth first, and stops at the
// first node that consumes it.
func Dispatch(ctx context.Context, env *Env, root SubStep, ev Event) (bool, error) {
	stack := []SubStep{root}
	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]

		ok, err := node.ReceiveEvent(ctx, env, ev)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		stack = append(stack, node.Dependencies()...)
	}
	return false, nil
}

// ReceiveFirst offers ev to slots in order and stops at the first taker.
func ReceiveFirst(ctx context.Context, env *Env, ev Event, slots ...Slot) (bool, error) {
	for _, s := range slots {
		ok, err := s.Receive(ctx, env, ev)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func DeleteAll(ctx context.Context, env *Env, items ...Resetter) {
	for _, r := range items {
		r.Delete(ctx, env)
	}
}

func CleanAll(ctx context.Context, env *Env, items ...Resetter) {
	for _, r := range items {
		r.CleanForStorage(ctx, env)
	}
}

func RestoreAll(ctx context.Context, env *Env, items ...Resetter) error {
	for _, r := range items {
		if err := r.Restore(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
