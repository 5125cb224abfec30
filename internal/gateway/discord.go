package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// discordMaxContent is the message content limit enforced by Discord.
const discordMaxContent = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	GuildID string

	// responded holds interactions already answered by Reply or OpenModal.
	responded sync.Map
}

func NewDiscordGateway(token, guildID string) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	// Handlers run one after another on the event loop, so a user's events
	// reach the modules in the order Discord sent them.
	session.SyncEvents = true

	return &DiscordGateway{
		Session: session,
		GuildID: guildID,
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context, handler Handler, commands []CommandSpec) error {
	dg.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Authorized on account %s", r.User.Username)

		var cmds []*discordgo.ApplicationCommand
		for _, c := range commands {
			cmds = append(cmds, &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description})
		}
		if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, dg.GuildID, cmds, discordgo.WithContext(ctx)); err != nil {
			log.Printf("Warning: failed to register commands: %v", err)
		}
	})

	dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		handler.OnMessage(ctx, convertMessage(m.Message))
	})

	dg.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		base := convertInteraction(i.Interaction)
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			handler.OnCommand(ctx, Command{Interaction: base, Name: i.ApplicationCommandData().Name})
		case discordgo.InteractionMessageComponent:
			base.CustomID = i.MessageComponentData().CustomID
			handler.OnInteraction(ctx, base)
		case discordgo.InteractionModalSubmit:
			data := i.ModalSubmitData()
			base.CustomID = data.CustomID
			handler.OnModalSubmit(ctx, ModalSubmit{Interaction: base, Fields: modalFields(data.Components)})
		}
	})

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	<-ctx.Done()
	return dg.Stop()
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}

func (dg *DiscordGateway) Send(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error) {
	sent, err := dg.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    clipContent(msg.Content),
		Components: discordRows(msg.Rows),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (dg *DiscordGateway) Edit(ctx context.Context, ref MessageRef, msg OutgoingMessage) error {
	content := clipContent(msg.Content)
	components := discordRows(msg.Rows)
	_, err := dg.Session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Content:    &content,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return err
}

func (dg *DiscordGateway) Delete(ctx context.Context, ref MessageRef) error {
	return dg.Session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
}

func (dg *DiscordGateway) Download(ctx context.Context, attachment Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := dg.Session.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch attachment: status code %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (dg *DiscordGateway) Reply(ctx context.Context, it Interaction, msg OutgoingMessage) error {
	raw, ok := it.Raw.(*discordgo.Interaction)
	if !ok {
		return fmt.Errorf("interaction %s has no discord payload", it.ID)
	}
	err := dg.Session.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    msg.Content,
			Components: discordRows(msg.Rows),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err == nil {
		dg.responded.Store(it.ID, struct{}{})
	}
	return err
}

func (dg *DiscordGateway) OpenModal(ctx context.Context, it Interaction, modal Modal) error {
	raw, ok := it.Raw.(*discordgo.Interaction)
	if !ok {
		return fmt.Errorf("interaction %s has no discord payload", it.ID)
	}

	var rows []discordgo.MessageComponent
	for _, input := range modal.Inputs {
		style := discordgo.TextInputShort
		if input.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID: input.CustomID,
				Label:    input.Label,
				Style:    style,
				Value:    input.Value,
				Required: input.Required,
			},
		}})
	}

	err := dg.Session.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modal.CustomID,
			Title:      modal.Title,
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
	if err == nil {
		dg.responded.Store(it.ID, struct{}{})
	}
	return err
}

func (dg *DiscordGateway) Acknowledge(ctx context.Context, it Interaction) error {
	if _, done := dg.responded.LoadAndDelete(it.ID); done {
		return nil
	}
	raw, ok := it.Raw.(*discordgo.Interaction)
	if !ok {
		return nil
	}
	return dg.Session.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
}

func (dg *DiscordGateway) CreateThread(ctx context.Context, parentID, name, userID string) (string, error) {
	thread, err := dg.Session.ThreadStartComplex(parentID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: 10080,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	if err := dg.Session.ThreadMemberAdd(thread.ID, userID, discordgo.WithContext(ctx)); err != nil {
		return thread.ID, fmt.Errorf("failed to add member to thread: %w", err)
	}
	return thread.ID, nil
}

func (dg *DiscordGateway) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := dg.Session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

func clipContent(s string) string {
	runes := []rune(s)
	if len(runes) <= discordMaxContent {
		return s
	}
	return string(runes[:discordMaxContent-1]) + "…"
}

func discordRows(rows [][]Button) []discordgo.MessageComponent {
	components := []discordgo.MessageComponent{}
	for _, row := range rows {
		var buttons []discordgo.MessageComponent
		for _, b := range row {
			buttons = append(buttons, discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    discordStyle(b.Style),
			})
		}
		components = append(components, discordgo.ActionsRow{Components: buttons})
	}
	return components
}

func discordStyle(style ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case ButtonSecondary:
		return discordgo.SecondaryButton
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func convertMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return msg
}

func convertInteraction(i *discordgo.Interaction) Interaction {
	it := Interaction{
		ID:        i.ID,
		ChannelID: i.ChannelID,
		Raw:       i,
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user != nil {
		it.UserID = user.ID
		it.UserName = user.Username
	}
	if i.Message != nil {
		it.Message = MessageRef{ChannelID: i.Message.ChannelID, MessageID: i.Message.ID}
	}
	return it
}

func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}
