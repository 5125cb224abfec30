package wizard

import (
	"context"
	"fmt"

	"github.com/rahul/bidibip/internal/gateway"
)

// ControlsPerRow is the widest row of controls the platforms accept for
// our menus.
const ControlsPerRow = 3

const actionChoice = "choice"

// Variant is implemented by the value type of a ChoiceOption, usually a
// tagged union. Build is called on the zero value and returns a fresh value
// for a key; Sub returns the nested form attached to the variant, or nil.
type Variant[T any] interface {
	Build(key string) (T, bool)
	Sub() SubStep
}

// Choice is one control of a menu.
type Choice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Token int    `json:"token,omitempty"`
}

type ChoiceState int

const (
	ChoiceUnset ChoiceState = iota
	ChoiceAsked
	ChoiceAnswered
)

// ChoiceOption is a closed-choice slot rendered as a button menu. Answering
// rewrites the menu in place; every control stays live so the user can
// change their mind, and tokens are only freed when the option is deleted.
type ChoiceOption[T Variant[T]] struct {
	State    ChoiceState        `json:"state"`
	Prompt   string             `json:"prompt,omitempty"`
	Menu     gateway.MessageRef `json:"menu"`
	Choices  []Choice           `json:"choices,omitempty"`
	Selected string             `json:"selected,omitempty"`
	Value    T                  `json:"value"`
}

func (o *ChoiceOption[T]) IsSet() bool {
	return o.State == ChoiceAnswered
}

func (o *ChoiceOption[T]) Get() (T, bool) {
	return o.Value, o.State == ChoiceAnswered
}

// Ask sends the menu when the option is unset, leasing one token per choice.
func (o *ChoiceOption[T]) Ask(ctx context.Context, env *Env, prompt string, choices ...Choice) error {
	if o.State != ChoiceUnset {
		return nil
	}

	leased := make([]Choice, len(choices))
	for i, c := range choices {
		c.Token = env.lease(ctx)
		leased[i] = c
	}
	ref, err := env.Transport.Send(ctx, env.Channel, menuMessage(env.Namespace, prompt, leased, ""))
	if err != nil {
		for _, c := range leased {
			env.release(ctx, c.Token)
		}
		return fmt.Errorf("failed to ask %q: %w", prompt, err)
	}

	o.State = ChoiceAsked
	o.Prompt = prompt
	o.Menu = ref
	o.Choices = leased
	env.Log.LogStep(ctx, env.Namespace, env.Channel, "ask", prompt)
	return nil
}

func (o *ChoiceOption[T]) Receive(ctx context.Context, env *Env, ev Event) (bool, error) {
	if ev.Interaction == nil {
		return false, nil
	}
	return o.TrySet(ctx, env, *ev.Interaction)
}

// TrySet selects the choice whose control was clicked. Switching away from a
// previous choice deletes that variant's nested form and its UI.
func (o *ChoiceOption[T]) TrySet(ctx context.Context, env *Env, it gateway.Interaction) (bool, error) {
	token, ok := ParseToken(env.Namespace, actionChoice, it.CustomID)
	if !ok || o.State == ChoiceUnset {
		return false, nil
	}
	var picked *Choice
	for i := range o.Choices {
		if o.Choices[i].Token == token {
			picked = &o.Choices[i]
			break
		}
	}
	if picked == nil {
		return false, nil
	}
	if o.State == ChoiceAnswered && o.Selected == picked.Key {
		return true, nil
	}

	var zero T
	value, ok := zero.Build(picked.Key)
	if !ok {
		return false, fmt.Errorf("unknown choice %q for %q", picked.Key, o.Prompt)
	}
	if err := env.Transport.Edit(ctx, o.Menu, menuMessage(env.Namespace, o.Prompt, o.Choices, picked.Key)); err != nil {
		return false, fmt.Errorf("failed to record choice: %w", err)
	}

	if o.State == ChoiceAnswered {
		if sub := o.Value.Sub(); sub != nil {
			sub.Delete(ctx, env)
		}
	}
	o.State = ChoiceAnswered
	o.Selected = picked.Key
	o.Value = value
	env.Log.LogStep(ctx, env.Namespace, env.Channel, "choose", picked.Key)
	return true, nil
}

// AdvanceNested advances the nested form of the selected variant. It reports
// done when the option is answered and its nested form, if any, is complete.
func (o *ChoiceOption[T]) AdvanceNested(ctx context.Context, env *Env) (bool, error) {
	if o.State != ChoiceAnswered {
		return false, nil
	}
	sub := o.Value.Sub()
	if sub == nil {
		return true, nil
	}
	return sub.Advance(ctx, env)
}

// Dependencies returns the nested form of the selected variant.
func (o *ChoiceOption[T]) Dependencies() []SubStep {
	if o.State != ChoiceAnswered {
		return nil
	}
	if sub := o.Value.Sub(); sub != nil {
		return []SubStep{sub}
	}
	return nil
}

func (o *ChoiceOption[T]) Delete(ctx context.Context, env *Env) {
	if o.State == ChoiceAnswered {
		if sub := o.Value.Sub(); sub != nil {
			sub.Delete(ctx, env)
		}
	}
	env.retire(ctx, o.Menu, o.tokens()...)
	*o = ChoiceOption[T]{}
}

func (o *ChoiceOption[T]) tokens() []int {
	tokens := make([]int, len(o.Choices))
	for i, c := range o.Choices {
		tokens[i] = c.Token
	}
	return tokens
}

func (o *ChoiceOption[T]) CleanForStorage(ctx context.Context, env *Env) {
	if o.State != ChoiceAnswered {
		env.retire(ctx, o.Menu, o.tokens()...)
		*o = ChoiceOption[T]{}
		return
	}
	if sub := o.Value.Sub(); sub != nil {
		sub.CleanForStorage(ctx, env)
	}
	env.retire(ctx, o.Menu, o.tokens()...)
	for i := range o.Choices {
		o.Choices[i].Token = 0
	}
	o.Menu = gateway.MessageRef{}
}

// Restore re-posts the menu of an answered option that has no message, then
// restores the selected variant's nested form.
func (o *ChoiceOption[T]) Restore(ctx context.Context, env *Env) error {
	if o.State != ChoiceAnswered {
		return nil
	}
	if o.Menu.IsZero() {
		for i := range o.Choices {
			o.Choices[i].Token = env.lease(ctx)
		}
		ref, err := env.Transport.Send(ctx, env.Channel, menuMessage(env.Namespace, o.Prompt, o.Choices, o.Selected))
		if err != nil {
			for i := range o.Choices {
				env.release(ctx, o.Choices[i].Token)
				o.Choices[i].Token = 0
			}
			return fmt.Errorf("failed to restore %q: %w", o.Prompt, err)
		}
		o.Menu = ref
	}
	if sub := o.Value.Sub(); sub != nil {
		return sub.Restore(ctx, env)
	}
	return nil
}

func menuMessage(namespace, prompt string, choices []Choice, selected string) gateway.OutgoingMessage {
	var rows [][]gateway.Button
	var row []gateway.Button
	for _, c := range choices {
		if len(row) == ControlsPerRow {
			rows = append(rows, row)
			row = nil
		}
		style := gateway.ButtonPrimary
		if selected != "" {
			style = gateway.ButtonSecondary
			if c.Key == selected {
				style = gateway.ButtonSuccess
			}
		}
		row = append(row, gateway.Button{
			CustomID: TokenCustomID(namespace, actionChoice, c.Token),
			Label:    c.Label,
			Style:    style,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return gateway.OutgoingMessage{
		Content: fmt.Sprintf("## ▶  %s", prompt),
		Rows:    rows,
	}
}
