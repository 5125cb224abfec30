// Package gatewaytest provides an in-memory gateway.Transport for tests.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/bidibip/internal/gateway"
)

var ErrInjected = errors.New("injected transport failure")

// Recorder keeps every live message in memory and records each call.
type Recorder struct {
	mu sync.Mutex

	nextID   int
	Messages map[gateway.MessageRef]gateway.OutgoingMessage
	Order    []gateway.MessageRef

	Sent     []gateway.MessageRef
	Edited   []gateway.MessageRef
	Deleted  []gateway.MessageRef
	Replies  []gateway.OutgoingMessage
	Modals   []gateway.Modal
	Acked    []string
	Threads  []string
	Removed  []string
	Files    map[string][]byte
	FailSend bool
	FailEdit bool
	// FailDelete makes Delete return ErrInjected without removing anything.
	FailDelete bool
}

func NewRecorder() *Recorder {
	return &Recorder{
		Messages: make(map[gateway.MessageRef]gateway.OutgoingMessage),
		Files:    make(map[string][]byte),
	}
}

func (r *Recorder) Send(ctx context.Context, channelID string, msg gateway.OutgoingMessage) (gateway.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend {
		return gateway.MessageRef{}, ErrInjected
	}
	r.nextID++
	ref := gateway.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", r.nextID)}
	r.Messages[ref] = msg
	r.Order = append(r.Order, ref)
	r.Sent = append(r.Sent, ref)
	return ref, nil
}

func (r *Recorder) Edit(ctx context.Context, ref gateway.MessageRef, msg gateway.OutgoingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEdit {
		return ErrInjected
	}
	if _, ok := r.Messages[ref]; !ok {
		return fmt.Errorf("unknown message %s", ref.MessageID)
	}
	r.Messages[ref] = msg
	r.Edited = append(r.Edited, ref)
	return nil
}

func (r *Recorder) Delete(ctx context.Context, ref gateway.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete {
		return ErrInjected
	}
	delete(r.Messages, ref)
	r.Deleted = append(r.Deleted, ref)
	return nil
}

func (r *Recorder) Download(ctx context.Context, attachment gateway.Attachment) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.Files[attachment.URL]
	if !ok {
		return nil, fmt.Errorf("no file at %s", attachment.URL)
	}
	return data, nil
}

func (r *Recorder) Reply(ctx context.Context, it gateway.Interaction, msg gateway.OutgoingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Replies = append(r.Replies, msg)
	return nil
}

func (r *Recorder) OpenModal(ctx context.Context, it gateway.Interaction, modal gateway.Modal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Modals = append(r.Modals, modal)
	return nil
}

func (r *Recorder) Acknowledge(ctx context.Context, it gateway.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Acked = append(r.Acked, it.ID)
	return nil
}

func (r *Recorder) CreateThread(ctx context.Context, parentID, name, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("thread%d", r.nextID)
	r.Threads = append(r.Threads, id)
	return id, nil
}

func (r *Recorder) DeleteChannel(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Removed = append(r.Removed, channelID)
	for ref := range r.Messages {
		if ref.ChannelID == channelID {
			delete(r.Messages, ref)
		}
	}
	return nil
}

// Live returns the messages still present in channelID, oldest first.
func (r *Recorder) Live(channelID string) []gateway.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var refs []gateway.MessageRef
	for _, ref := range r.Order {
		if _, ok := r.Messages[ref]; ok && ref.ChannelID == channelID {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Last returns the most recently sent message still alive.
func (r *Recorder) Last() (gateway.MessageRef, gateway.OutgoingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Order) - 1; i >= 0; i-- {
		if msg, ok := r.Messages[r.Order[i]]; ok {
			return r.Order[i], msg
		}
	}
	return gateway.MessageRef{}, gateway.OutgoingMessage{}
}

func (r *Recorder) Get(ref gateway.MessageRef) (gateway.OutgoingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.Messages[ref]
	return msg, ok
}

// Button finds the first live control whose label contains label.
func (r *Recorder) Button(ref gateway.MessageRef, label string) (gateway.Button, bool) {
	msg, ok := r.Get(ref)
	if !ok {
		return gateway.Button{}, false
	}
	for _, row := range msg.Rows {
		for _, b := range row {
			if strings.Contains(b.Label, label) {
				return b, true
			}
		}
	}
	return gateway.Button{}, false
}

// Find returns the newest live message whose content contains text.
func (r *Recorder) Find(text string) (gateway.MessageRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Order) - 1; i >= 0; i-- {
		if msg, ok := r.Messages[r.Order[i]]; ok && strings.Contains(msg.Content, text) {
			return r.Order[i], true
		}
	}
	return gateway.MessageRef{}, false
}
