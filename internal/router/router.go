// Package router fans inbound gateway events out to the registered modules.
package router

import (
	"context"
	"fmt"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/observability"
	"github.com/rahul/bidibip/internal/wizard"
)

// Module is a bot feature. Its name is also the namespace of every routing
// string its controls carry. Each handler reports whether it consumed the
// event.
type Module interface {
	Name() string
	Commands() []gateway.CommandSpec
	OnCommand(ctx context.Context, cmd gateway.Command) (bool, error)
	OnMessage(ctx context.Context, msg gateway.Message) (bool, error)
	OnInteraction(ctx context.Context, it gateway.Interaction) (bool, error)
	OnModalSubmit(ctx context.Context, submit gateway.ModalSubmit) (bool, error)
}

// Router manages the set of modules and implements gateway.Handler.
type Router struct {
	Modules   map[string]Module
	Transport gateway.Transport
	Log       *observability.Logger

	order []string
}

func NewRouter(transport gateway.Transport, logger *observability.Logger) *Router {
	return &Router{
		Modules:   make(map[string]Module),
		Transport: transport,
		Log:       logger,
	}
}

func (r *Router) Register(m Module) {
	if _, ok := r.Modules[m.Name()]; !ok {
		r.order = append(r.order, m.Name())
	}
	r.Modules[m.Name()] = m
}

func (r *Router) Get(name string) Module {
	return r.Modules[name]
}

// Commands lists the commands of every module, in registration order.
func (r *Router) Commands() []gateway.CommandSpec {
	var cmds []gateway.CommandSpec
	for _, name := range r.order {
		cmds = append(cmds, r.Modules[name].Commands()...)
	}
	return cmds
}

func (r *Router) owner(command string) Module {
	for _, name := range r.order {
		for _, c := range r.Modules[name].Commands() {
			if c.Name == command {
				return r.Modules[name]
			}
		}
	}
	return nil
}

func (r *Router) OnCommand(ctx context.Context, cmd gateway.Command) {
	ctx = observability.WithTrace(ctx)
	observability.SetStatus(observability.ActivityRouting, "/"+cmd.Name)
	defer observability.SetStatus(observability.ActivityIdle, "")

	m := r.owner(cmd.Name)
	if m == nil {
		r.acknowledge(ctx, cmd.Interaction)
		return
	}
	r.Log.LogCommand(ctx, m.Name(), cmd.UserID, cmd.Name)
	_, err := m.OnCommand(ctx, cmd)
	r.finish(ctx, m.Name(), cmd.Interaction, err)
}

// OnMessage offers a message to each module in turn until one consumes it.
func (r *Router) OnMessage(ctx context.Context, msg gateway.Message) {
	ctx = observability.WithTrace(ctx)
	observability.SetStatus(observability.ActivityRouting, "message")
	defer observability.SetStatus(observability.ActivityIdle, "")

	for _, name := range r.order {
		ok, err := r.Modules[name].OnMessage(ctx, msg)
		if err != nil {
			r.Log.LogError(ctx, name, msg.AuthorID, err)
			return
		}
		if ok {
			return
		}
	}
}

// OnInteraction routes a control activation to the module named by its
// routing string.
func (r *Router) OnInteraction(ctx context.Context, it gateway.Interaction) {
	ctx = observability.WithTrace(ctx)
	observability.SetStatus(observability.ActivityRouting, it.CustomID)
	defer observability.SetStatus(observability.ActivityIdle, "")

	m := r.Modules[wizard.Namespace(it.CustomID)]
	if m == nil {
		r.acknowledge(ctx, it)
		return
	}
	_, err := m.OnInteraction(ctx, it)
	r.finish(ctx, m.Name(), it, err)
}

func (r *Router) OnModalSubmit(ctx context.Context, submit gateway.ModalSubmit) {
	ctx = observability.WithTrace(ctx)
	observability.SetStatus(observability.ActivityRouting, submit.CustomID)
	defer observability.SetStatus(observability.ActivityIdle, "")

	m := r.Modules[wizard.Namespace(submit.CustomID)]
	if m == nil {
		r.acknowledge(ctx, submit.Interaction)
		return
	}
	_, err := m.OnModalSubmit(ctx, submit)
	r.finish(ctx, m.Name(), submit.Interaction, err)
}

// finish answers the interaction: with the error if handling failed,
// otherwise with a silent acknowledgement.
func (r *Router) finish(ctx context.Context, module string, it gateway.Interaction, err error) {
	if err != nil {
		r.Log.LogError(ctx, module, it.UserID, err)
		rerr := r.Transport.Reply(ctx, it, gateway.OutgoingMessage{
			Content: fmt.Sprintf(":x: Something went wrong: %v", err),
		})
		if rerr == nil {
			return
		}
		r.Log.LogTransportWarning(ctx, module, it.ChannelID, "reply", rerr)
	}
	r.acknowledge(ctx, it)
}

func (r *Router) acknowledge(ctx context.Context, it gateway.Interaction) {
	if err := r.Transport.Acknowledge(ctx, it); err != nil {
		r.Log.LogTransportWarning(ctx, "", it.ChannelID, "acknowledge", err)
	}
}
