package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/gateway/gatewaytest"
)

const testNS = "test"

func newEnv(rec *gatewaytest.Recorder) *Env {
	return &Env{
		Transport: rec,
		Tokens:    NewAllocator(),
		Namespace: testNS,
		Channel:   "c1",
	}
}

type variant struct {
	Key    string      `json:"key"`
	Detail *TextOption `json:"detail,omitempty"`
}

func (variant) Build(key string) (variant, bool) {
	switch key {
	case "a", "c":
		return variant{Key: key}, true
	case "b":
		return variant{Key: key, Detail: NewText("Detail of B")}, true
	}
	return variant{}, false
}

func (v variant) Sub() SubStep {
	if v.Detail != nil {
		return v.Detail
	}
	return nil
}

var abc = []Choice{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}, {Key: "c", Label: "C"}}

// testDoc asks a name, a kind (B carries a nested detail) and notes.
type testDoc struct {
	Name  TextOption            `json:"name"`
	Kind  ChoiceOption[variant] `json:"kind"`
	Notes TextOption            `json:"notes"`
}

func newTestDoc() *testDoc {
	return &testDoc{}
}

func (d *testDoc) Advance(ctx context.Context, env *Env) (bool, error) {
	if !d.Name.IsSet() {
		return false, d.Name.Ask(ctx, env, "Name")
	}
	if !d.Kind.IsSet() {
		return false, d.Kind.Ask(ctx, env, "Kind", abc...)
	}
	if done, err := d.Kind.AdvanceNested(ctx, env); !done || err != nil {
		return false, err
	}
	if !d.Notes.IsSet() {
		return false, d.Notes.Ask(ctx, env, "Notes")
	}
	return true, nil
}

func (d *testDoc) ReceiveEvent(ctx context.Context, env *Env, ev Event) (bool, error) {
	return ReceiveFirst(ctx, env, ev, &d.Name, &d.Kind, &d.Notes)
}

func (d *testDoc) Dependencies() []SubStep { return d.Kind.Dependencies() }

func (d *testDoc) Delete(ctx context.Context, env *Env) {
	DeleteAll(ctx, env, &d.Name, &d.Kind, &d.Notes)
}

func (d *testDoc) CleanForStorage(ctx context.Context, env *Env) {
	CleanAll(ctx, env, &d.Name, &d.Kind, &d.Notes)
}

func (d *testDoc) Restore(ctx context.Context, env *Env) error {
	return RestoreAll(ctx, env, &d.Name, &d.Kind, &d.Notes)
}

func (d *testDoc) Preview() (string, error) {
	name, ok := d.Name.Get()
	if !ok {
		return "", ErrNotComplete
	}
	kind, ok := d.Kind.Get()
	if !ok {
		return "", ErrNotComplete
	}
	notes, _ := d.Notes.Get()
	return fmt.Sprintf("Preview: %s / %s / %s", name, kind.Key, notes), nil
}

func (d *testDoc) Summary() string {
	name, _ := d.Name.Get()
	return name
}

// testHooks opens a thread per session. With dm set, every session of a
// user shares one channel that is never closed, as in a private chat.
type testHooks struct {
	rec *gatewaytest.Recorder
	dm  bool
}

func (h *testHooks) OpenChannel(ctx context.Context, userID string, cancel gateway.Button) (string, gateway.MessageRef, error) {
	channel := "dm-" + userID
	if !h.dm {
		var err error
		channel, err = h.rec.CreateThread(ctx, "parent", "draft", userID)
		if err != nil {
			return "", gateway.MessageRef{}, err
		}
	}
	welcome, err := h.rec.Send(ctx, channel, gateway.OutgoingMessage{
		Content: "Welcome",
		Rows:    [][]gateway.Button{{cancel}},
	})
	return channel, welcome, err
}

func (h *testHooks) CloseChannel(ctx context.Context, channelID string) {
	if h.dm {
		return
	}
	_ = h.rec.DeleteChannel(ctx, channelID)
}

func (h *testHooks) Publish(ctx context.Context, userID string, doc *testDoc, previous *Submission[*testDoc]) (gateway.MessageRef, error) {
	content, err := doc.Preview()
	if err != nil {
		return gateway.MessageRef{}, err
	}
	if previous != nil {
		return previous.Message, h.rec.Edit(ctx, previous.Message, gateway.OutgoingMessage{Content: content})
	}
	return h.rec.Send(ctx, "ads", gateway.OutgoingMessage{Content: content})
}

func (h *testHooks) Unpublish(ctx context.Context, sub *Submission[*testDoc]) {
	_ = h.rec.Delete(ctx, sub.Message)
}

var errDiskFull = errors.New("disk full")

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail bool
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) Load(ctx context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (s *memStore) Save(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.docs[key] = data
	return nil
}

func newTestManager(rec *gatewaytest.Recorder, store Store) *Manager[*testDoc] {
	return NewManager[*testDoc](testNS, rec, store, &testHooks{rec: rec}, newTestDoc)
}

func message(id, user, channel, text string) gateway.Message {
	return gateway.Message{ID: id, AuthorID: user, ChannelID: channel, Content: text}
}

func click(user, channel, customID string) gateway.Interaction {
	return gateway.Interaction{ID: "i-" + customID, UserID: user, ChannelID: channel, CustomID: customID}
}
