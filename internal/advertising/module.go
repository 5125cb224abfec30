package advertising

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/observability"
	"github.com/rahul/bidibip/internal/wizard"
)

// Namespace prefixes every routing string of the module.
const Namespace = "advertising"

const Command = "annonce"

const (
	actionCreate   = "create-ad"
	actionResume   = "resume-ad"
	actionEditAd   = "edit-ad"
	actionDeleteAd = "delete-ad"
)

type Config struct {
	// InProgressChannel is the parent of the private editing threads.
	InProgressChannel string
	// AdChannel receives published ads.
	AdChannel    string
	MaxAdPerUser int
}

// Module runs the job ad wizard.
type Module struct {
	Config    Config
	Transport gateway.Transport
	Sessions  *wizard.Manager[*Ad]
	Log       *observability.Logger
}

func NewModule(cfg Config, transport gateway.Transport, store wizard.Store, filter wizard.AnswerFilter, logger *observability.Logger) *Module {
	m := &Module{
		Config:    cfg,
		Transport: transport,
		Log:       logger,
	}
	m.Sessions = wizard.NewManager[*Ad](Namespace, transport, store, m, NewAd)
	m.Sessions.Filter = filter
	m.Sessions.Log = logger
	return m
}

// Load restores the persisted sessions, submissions and tokens.
func (m *Module) Load(ctx context.Context) error {
	return m.Sessions.Load(ctx)
}

func (m *Module) Name() string { return Namespace }

func (m *Module) Commands() []gateway.CommandSpec {
	return []gateway.CommandSpec{{
		Name:        Command,
		Description: "Create, edit or delete your job ads",
	}}
}

func (m *Module) canCreate(o wizard.Overview) bool {
	return m.Config.MaxAdPerUser <= 0 || len(o.Submissions) < m.Config.MaxAdPerUser
}

func (m *Module) OnCommand(ctx context.Context, cmd gateway.Command) (bool, error) {
	if cmd.Name != Command {
		return false, nil
	}
	overview, err := m.Sessions.Overview(ctx, cmd.UserID)
	if err != nil {
		return true, err
	}
	if !overview.InProgress && len(overview.Submissions) == 0 {
		return true, m.start(ctx, cmd.Interaction, overview)
	}
	return true, m.Transport.Reply(ctx, cmd.Interaction, menu(overview, m.canCreate(overview)))
}

func menu(o wizard.Overview, canCreate bool) gateway.OutgoingMessage {
	msg := gateway.OutgoingMessage{Content: "# Your ads"}
	if o.InProgress {
		msg.Content += fmt.Sprintf("\nAn ad is being written in %s.", mention(o.Channel))
		row := []gateway.Button{
			{CustomID: wizard.MakeCustomID(Namespace, actionResume), Label: "Continue", Style: gateway.ButtonPrimary},
		}
		if canCreate {
			row = append(row, gateway.Button{CustomID: wizard.MakeCustomID(Namespace, actionCreate), Label: "Start over", Style: gateway.ButtonDanger})
		}
		msg.Rows = append(msg.Rows, row)
	} else if canCreate {
		msg.Rows = append(msg.Rows, []gateway.Button{
			{CustomID: wizard.MakeCustomID(Namespace, actionCreate), Label: "Create a new ad", Style: gateway.ButtonPrimary},
		})
	}
	for _, sub := range o.Submissions {
		msg.Content += fmt.Sprintf("\n- **%s**", sub.Summary)
		msg.Rows = append(msg.Rows, []gateway.Button{
			{CustomID: wizard.MakeCustomID(Namespace, actionEditAd, sub.Location), Label: "Edit " + wizard.TruncateText(sub.Summary, 60), Style: gateway.ButtonSecondary},
			{CustomID: wizard.MakeCustomID(Namespace, actionDeleteAd, sub.Location), Label: "Delete", Style: gateway.ButtonDanger},
		})
	}
	return msg
}

func (m *Module) OnInteraction(ctx context.Context, it gateway.Interaction) (bool, error) {
	action, payload, ok := wizard.ParseCustomID(Namespace, it.CustomID)
	if !ok {
		return false, nil
	}

	switch action {
	case actionCreate:
		overview, err := m.Sessions.Overview(ctx, it.UserID)
		if err != nil {
			return true, err
		}
		return true, m.start(ctx, it, overview)

	case actionResume:
		channel, err := m.Sessions.Resume(ctx, it.UserID)
		if errors.Is(err, wizard.ErrNoSession) {
			return true, m.reply(ctx, it, "You have no ad in progress. Use /"+Command+" to create one.")
		}
		if err != nil {
			return true, err
		}
		return true, m.reply(ctx, it, "Pick up where you left off: "+mention(channel))

	case actionEditAd:
		channel, err := m.Sessions.Edit(ctx, it.UserID, payload)
		if errors.Is(err, wizard.ErrNoSubmission) {
			return true, m.reply(ctx, it, "This ad no longer exists.")
		}
		if err != nil {
			return true, err
		}
		return true, m.reply(ctx, it, "Edit your ad here: "+mention(channel))

	case actionDeleteAd:
		err := m.Sessions.DeleteSubmission(ctx, it.UserID, payload)
		if errors.Is(err, wizard.ErrNoSubmission) {
			return true, m.reply(ctx, it, "This ad no longer exists.")
		}
		if err != nil {
			return true, err
		}
		return true, m.reply(ctx, it, "Your ad was deleted.")
	}

	return m.Sessions.HandleInteraction(ctx, it)
}

func (m *Module) OnMessage(ctx context.Context, msg gateway.Message) (bool, error) {
	return m.Sessions.HandleMessage(ctx, msg)
}

func (m *Module) OnModalSubmit(ctx context.Context, submit gateway.ModalSubmit) (bool, error) {
	return m.Sessions.HandleModal(ctx, submit)
}

func (m *Module) start(ctx context.Context, it gateway.Interaction, o wizard.Overview) error {
	if !m.canCreate(o) {
		return m.reply(ctx, it, fmt.Sprintf("You already have %d ads, delete one before creating another.", len(o.Submissions)))
	}
	channel, err := m.Sessions.Start(ctx, it.UserID)
	if err != nil {
		return err
	}
	text := "Got it, the rest happens here: " + mention(channel)
	if o.InProgress {
		text += "\n> Your previous draft was deleted."
	}
	return m.reply(ctx, it, text)
}

func (m *Module) reply(ctx context.Context, it gateway.Interaction, text string) error {
	return m.Transport.Reply(ctx, it, gateway.OutgoingMessage{Content: text})
}

func (m *Module) warn(ctx context.Context, channelID, op string, err error) {
	m.Log.LogTransportWarning(ctx, Namespace, channelID, op, err)
}

// OpenChannel creates the private editing thread of userID and greets them
// with the cancel control of the session.
func (m *Module) OpenChannel(ctx context.Context, userID string, cancel gateway.Button) (string, gateway.MessageRef, error) {
	thread, err := m.Transport.CreateThread(ctx, m.Config.InProgressChannel, "Ad in progress", userID)
	if err != nil {
		if thread != "" {
			m.CloseChannel(ctx, thread)
		}
		return "", gateway.MessageRef{}, err
	}
	welcome, err := m.Transport.Send(ctx, thread, gateway.OutgoingMessage{
		Content: fmt.Sprintf("# Welcome to the ad form <@%s>!\nAnswer each question below. Every answer can be edited until you submit.", userID),
		Rows:    [][]gateway.Button{{cancel}},
	})
	if err != nil {
		m.warn(ctx, thread, "send", err)
		return thread, gateway.MessageRef{}, nil
	}
	return thread, welcome, nil
}

func (m *Module) CloseChannel(ctx context.Context, channelID string) {
	if err := m.Transport.DeleteChannel(ctx, channelID); err != nil {
		m.warn(ctx, channelID, "delete_channel", err)
	}
}

// Publish posts the ad in the ad channel, or rewrites the ad being edited.
// An edited ad whose message is gone is posted again.
func (m *Module) Publish(ctx context.Context, userID string, ad *Ad, previous *wizard.Submission[*Ad]) (gateway.MessageRef, error) {
	body, err := ad.Preview()
	if err != nil {
		return gateway.MessageRef{}, err
	}
	msg := gateway.OutgoingMessage{Content: fmt.Sprintf("%s\n*Posted by <@%s>*", body, userID)}

	if previous != nil {
		err := m.Transport.Edit(ctx, previous.Message, msg)
		if err == nil {
			return previous.Message, nil
		}
		m.warn(ctx, previous.Message.ChannelID, "edit", err)
	}
	ref, err := m.Transport.Send(ctx, m.Config.AdChannel, msg)
	if err != nil {
		return gateway.MessageRef{}, fmt.Errorf("failed to post ad: %w", err)
	}
	return ref, nil
}

func (m *Module) Unpublish(ctx context.Context, sub *wizard.Submission[*Ad]) {
	if err := m.Transport.Delete(ctx, sub.Message); err != nil {
		m.warn(ctx, sub.Message.ChannelID, "delete", err)
	}
}

func mention(channelID string) string {
	return "<#" + channelID + ">"
}
