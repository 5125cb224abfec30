package gateway

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by transports that cannot render a requested
// UI element (Telegram has no modals, for instance).
var ErrUnsupported = errors.New("operation not supported by this gateway")

// MessageRef locates a message on the chat platform.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// IsZero reports whether the reference points nowhere.
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interactive control. CustomID carries the routing string.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// OutgoingMessage is the content of a sent or edited message. Each entry of
// Rows is rendered as one row of controls.
type OutgoingMessage struct {
	Content string
	Rows    [][]Button
}

type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int
}

// Message is a plain chat message written by a user.
type Message struct {
	ID          string
	AuthorID    string
	ChannelID   string
	Content     string
	Attachments []Attachment
}

func (m Message) Ref() MessageRef {
	return MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}
}

// Interaction is a control activation (button click).
type Interaction struct {
	ID        string
	UserID    string
	UserName  string
	ChannelID string
	CustomID  string
	Message   MessageRef

	// Raw is the platform event, kept so the transport can answer it.
	Raw any
}

// Command is a slash command invocation.
type Command struct {
	Interaction
	Name string
}

// ModalSubmit carries the values of a submitted modal keyed by input id.
type ModalSubmit struct {
	Interaction
	Fields map[string]string
}

type TextInput struct {
	CustomID  string
	Label     string
	Value     string
	Paragraph bool
	Required  bool
}

type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// CommandSpec describes a command a module wants registered.
type CommandSpec struct {
	Name        string
	Description string
}

// Transport is the outbound surface of a chat platform.
type Transport interface {
	Send(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg OutgoingMessage) error
	Delete(ctx context.Context, ref MessageRef) error
	Download(ctx context.Context, attachment Attachment) ([]byte, error)

	// Reply answers an interaction with a message only the acting user sees.
	Reply(ctx context.Context, it Interaction, msg OutgoingMessage) error
	OpenModal(ctx context.Context, it Interaction, modal Modal) error
	// Acknowledge answers an interaction that got no other response. It is a
	// no-op when Reply or OpenModal already answered it.
	Acknowledge(ctx context.Context, it Interaction) error

	CreateThread(ctx context.Context, parentID, name, userID string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// Handler receives inbound events.
type Handler interface {
	OnCommand(ctx context.Context, cmd Command)
	OnMessage(ctx context.Context, msg Message)
	OnInteraction(ctx context.Context, it Interaction)
	OnModalSubmit(ctx context.Context, submit ModalSubmit)
}

// Gateway defines the interface for communication gateways (Discord, Telegram, etc.)
type Gateway interface {
	Transport
	// Start begins the event listening loop and blocks until ctx is done or
	// the connection fails.
	Start(ctx context.Context, handler Handler, commands []CommandSpec) error
	// Stop gracefully shuts down the gateway
	Stop() error
}
