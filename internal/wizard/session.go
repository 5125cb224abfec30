package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/rahul/bidibip/internal/gateway"
	"github.com/rahul/bidibip/internal/observability"
)

var (
	ErrNoSession    = errors.New("no wizard in progress")
	ErrNoSubmission = errors.New("no such submission")
	ErrNotComplete  = errors.New("form is not complete")
)

const (
	actionSubmit = "submit"
	actionCancel = "cancel"
)

// Document is the root of a step tree.
type Document interface {
	SubStep
	// Preview renders the finished document. It fails when a slot the
	// document needs is unexpectedly empty.
	Preview() (string, error)
	// Summary is a short label used when listing stored submissions.
	Summary() string
}

// Store persists the whole state of one module as a single document.
type Store interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// Hooks are the module-specific side effects of a session's lifecycle.
type Hooks[T Document] interface {
	// OpenChannel creates the editing channel of a new session and posts its
	// welcome message carrying cancel, the control that abandons the session.
	OpenChannel(ctx context.Context, userID string, cancel gateway.Button) (string, gateway.MessageRef, error)
	// CloseChannel disposes of an editing channel. Failures are only logged.
	CloseChannel(ctx context.Context, channelID string)
	// Publish posts doc, or rewrites previous when a stored submission is
	// being edited, and returns the published message.
	Publish(ctx context.Context, userID string, doc T, previous *Submission[T]) (gateway.MessageRef, error)
	// Unpublish removes a stored submission's message.
	Unpublish(ctx context.Context, sub *Submission[T])
}

type Session[T Document] struct {
	Channel string `json:"channel"`
	Doc     T      `json:"doc"`
	// Editing is the location of the stored submission being edited, if any.
	Editing      string             `json:"editing,omitempty"`
	Preview      gateway.MessageRef `json:"preview"`
	PreviewToken int                `json:"preview_token,omitempty"`
	Welcome      gateway.MessageRef `json:"welcome"`
	CancelToken  int                `json:"cancel_token,omitempty"`
}

// Submission is a finalized document. Location is the message id of its
// published announcement.
type Submission[T Document] struct {
	Location string             `json:"location"`
	Message  gateway.MessageRef `json:"message"`
	Doc      T                  `json:"doc"`
}

// State is everything a module persists.
type State[T Document] struct {
	Sessions    map[string]*Session[T]               `json:"sessions"`
	Submissions map[string]map[string]*Submission[T] `json:"submissions"`
	Tokens      *Allocator                           `json:"tokens"`
}

// SubmissionInfo describes a stored submission without exposing its tree.
type SubmissionInfo struct {
	Location string
	Message  gateway.MessageRef
	Summary  string
}

// Overview is what a user currently has in a module.
type Overview struct {
	InProgress  bool
	Channel     string
	Submissions []SubmissionInfo
}

// Manager owns the sessions and submissions of one module. Every operation
// holds the module lock for its whole duration, network calls and the
// persistence write included, so events are processed one at a time in
// arrival order.
type Manager[T Document] struct {
	Namespace string
	Transport gateway.Transport
	Store     Store
	Hooks     Hooks[T]
	Filter    AnswerFilter
	Log       *observability.Logger
	// New returns an empty document.
	New func() T

	lock  *semaphore.Weighted
	state State[T]
}

func NewManager[T Document](namespace string, transport gateway.Transport, store Store, hooks Hooks[T], newDoc func() T) *Manager[T] {
	return &Manager[T]{
		Namespace: namespace,
		Transport: transport,
		Store:     store,
		Hooks:     hooks,
		New:       newDoc,
		lock:      semaphore.NewWeighted(1),
		state:     emptyState[T](),
	}
}

func emptyState[T Document]() State[T] {
	return State[T]{
		Sessions:    make(map[string]*Session[T]),
		Submissions: make(map[string]map[string]*Submission[T]),
		Tokens:      NewAllocator(),
	}
}

// acquire takes the module lock; the returned func releases it.
func (m *Manager[T]) acquire(ctx context.Context) (func(), error) {
	if err := m.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { m.lock.Release(1) }, nil
}

func (m *Manager[T]) env(channel string) *Env {
	return &Env{
		Transport: m.Transport,
		Tokens:    m.state.Tokens,
		Namespace: m.Namespace,
		Channel:   channel,
		Filter:    m.Filter,
		Log:       m.Log,
	}
}

// Load replaces the in-memory state with the persisted one.
func (m *Manager[T]) Load(ctx context.Context) error {
	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	state := emptyState[T]()
	if _, err := m.Store.Load(ctx, m.Namespace, &state); err != nil {
		return fmt.Errorf("failed to load %s state: %w", m.Namespace, err)
	}
	if state.Sessions == nil {
		state.Sessions = make(map[string]*Session[T])
	}
	if state.Submissions == nil {
		state.Submissions = make(map[string]map[string]*Submission[T])
	}
	if state.Tokens == nil {
		state.Tokens = NewAllocator()
	}
	m.state = state
	m.updateGauges()
	return nil
}

func (m *Manager[T]) persist(ctx context.Context) error {
	m.updateGauges()
	if err := m.Store.Save(ctx, m.Namespace, &m.state); err != nil {
		m.Log.LogPersist(ctx, m.Namespace, err)
		return fmt.Errorf("failed to save %s state: %w", m.Namespace, err)
	}
	m.Log.LogPersist(ctx, m.Namespace, nil)
	return nil
}

func (m *Manager[T]) updateGauges() {
	observability.ActiveSessions.WithLabelValues(m.Namespace).Set(float64(len(m.state.Sessions)))
	observability.TokensInUse.WithLabelValues(m.Namespace).Set(float64(m.state.Tokens.Len()))
	observability.SetSessions(len(m.state.Sessions))
}

// Overview reports the session and stored submissions of userID.
func (m *Manager[T]) Overview(ctx context.Context, userID string) (Overview, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return Overview{}, err
	}
	defer release()

	var o Overview
	if sess, ok := m.state.Sessions[userID]; ok {
		o.InProgress = true
		o.Channel = sess.Channel
	}
	for _, sub := range m.state.Submissions[userID] {
		o.Submissions = append(o.Submissions, SubmissionInfo{
			Location: sub.Location,
			Message:  sub.Message,
			Summary:  sub.Doc.Summary(),
		})
	}
	sort.Slice(o.Submissions, func(i, j int) bool {
		return o.Submissions[i].Location < o.Submissions[j].Location
	})
	return o, nil
}

// Start opens a fresh session for userID, superseding any session in
// progress, and asks the first question. It returns the editing channel.
func (m *Manager[T]) Start(ctx context.Context, userID string) (string, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return m.open(ctx, userID, "", m.New())
}

// Resume re-advances the session of userID and returns its channel.
func (m *Manager[T]) Resume(ctx context.Context, userID string) (string, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	sess, ok := m.state.Sessions[userID]
	if !ok {
		return "", ErrNoSession
	}
	if err := m.refresh(ctx, m.env(sess.Channel), sess); err != nil {
		return sess.Channel, err
	}
	return sess.Channel, m.persist(ctx)
}

// Edit reopens the stored submission at location in a new session. The
// stored document is cloned; the clone's answered slots are re-rendered so
// each one can be edited, and finalizing rewrites the submission in place.
func (m *Manager[T]) Edit(ctx context.Context, userID, location string) (string, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	sub, ok := m.state.Submissions[userID][location]
	if !ok {
		return "", ErrNoSubmission
	}
	doc, err := m.clone(sub.Doc)
	if err != nil {
		return "", err
	}
	return m.open(ctx, userID, location, doc)
}

func (m *Manager[T]) clone(doc T) (T, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("failed to copy document: %w", err)
	}
	clone := m.New()
	if err := json.Unmarshal(data, &clone); err != nil {
		return doc, fmt.Errorf("failed to copy document: %w", err)
	}
	return clone, nil
}

func (m *Manager[T]) open(ctx context.Context, userID, editing string, doc T) (string, error) {
	if old, ok := m.state.Sessions[userID]; ok {
		m.discard(ctx, userID, old)
		m.Log.LogSession(ctx, m.Namespace, userID, old.Channel, "superseded")
	}

	cancelToken := m.env("").lease(ctx)
	cancel := gateway.Button{
		CustomID: TokenCustomID(m.Namespace, actionCancel, cancelToken),
		Label:    "Cancel",
		Style:    gateway.ButtonDanger,
	}
	channel, welcome, err := m.Hooks.OpenChannel(ctx, userID, cancel)
	if err != nil {
		m.env("").release(ctx, cancelToken)
		if perr := m.persist(ctx); perr != nil {
			return "", errors.Join(err, perr)
		}
		return "", fmt.Errorf("failed to open editing channel: %w", err)
	}
	sess := &Session[T]{Channel: channel, Doc: doc, Editing: editing, Welcome: welcome, CancelToken: cancelToken}
	if welcome.IsZero() {
		// No message carries the control, so the token can go back.
		m.env(channel).release(ctx, cancelToken)
		sess.CancelToken = 0
	}
	m.state.Sessions[userID] = sess
	m.Log.LogSession(ctx, m.Namespace, userID, channel, "start")

	env := m.env(channel)
	if err := doc.Restore(ctx, env); err != nil {
		m.Log.LogError(ctx, m.Namespace, userID, err)
	}
	if err := m.refresh(ctx, env, sess); err != nil {
		m.Log.LogError(ctx, m.Namespace, userID, err)
	}
	return channel, m.persist(ctx)
}

// discard deletes a session's UI and channel and forgets it.
func (m *Manager[T]) discard(ctx context.Context, userID string, sess *Session[T]) {
	env := m.env(sess.Channel)
	m.dropPreview(ctx, env, sess)
	sess.Doc.Delete(ctx, env)
	m.dropWelcome(ctx, env, sess)
	m.Hooks.CloseChannel(ctx, sess.Channel)
	delete(m.state.Sessions, userID)
}

func (m *Manager[T]) dropWelcome(ctx context.Context, env *Env, sess *Session[T]) {
	env.retire(ctx, sess.Welcome, sess.CancelToken)
	sess.Welcome = gateway.MessageRef{}
	sess.CancelToken = 0
}

// Abandon drops the session of userID. Nothing happens when there is none.
func (m *Manager[T]) Abandon(ctx context.Context, userID string) error {
	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	sess, ok := m.state.Sessions[userID]
	if !ok {
		return nil
	}
	m.discard(ctx, userID, sess)
	m.Log.LogSession(ctx, m.Namespace, userID, sess.Channel, "abandon")
	return m.persist(ctx)
}

// Finalize publishes the document of userID and stores it.
func (m *Manager[T]) Finalize(ctx context.Context, userID string) (*Submission[T], error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, ok := m.state.Sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return m.finalize(ctx, userID, sess)
}

func (m *Manager[T]) finalize(ctx context.Context, userID string, sess *Session[T]) (*Submission[T], error) {
	env := m.env(sess.Channel)
	done, err := sess.Doc.Advance(ctx, env)
	if err != nil {
		return nil, err
	}
	if !done {
		m.dropPreview(ctx, env, sess)
		return nil, ErrNotComplete
	}

	var previous *Submission[T]
	if sess.Editing != "" {
		previous = m.state.Submissions[userID][sess.Editing]
	}
	ref, err := m.Hooks.Publish(ctx, userID, sess.Doc, previous)
	if err != nil {
		m.report(ctx, env, "Your submission could not be published", err)
		return nil, err
	}

	// Every control of the session is deleted before its token is freed:
	// the channel may outlive the session.
	m.dropPreview(ctx, env, sess)
	sess.Doc.CleanForStorage(ctx, env)
	m.dropWelcome(ctx, env, sess)
	m.Hooks.CloseChannel(ctx, sess.Channel)
	delete(m.state.Sessions, userID)

	subs := m.state.Submissions[userID]
	if subs == nil {
		subs = make(map[string]*Submission[T])
		m.state.Submissions[userID] = subs
	}
	if previous != nil {
		delete(subs, previous.Location)
	}
	sub := &Submission[T]{Location: ref.MessageID, Message: ref, Doc: sess.Doc}
	subs[sub.Location] = sub

	observability.Submissions.WithLabelValues(m.Namespace).Inc()
	m.Log.LogSession(ctx, m.Namespace, userID, sess.Channel, "finalize")
	return sub, m.persist(ctx)
}

// DeleteSubmission unpublishes and forgets a stored submission.
func (m *Manager[T]) DeleteSubmission(ctx context.Context, userID, location string) error {
	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	sub, ok := m.state.Submissions[userID][location]
	if !ok {
		return ErrNoSubmission
	}
	m.Hooks.Unpublish(ctx, sub)
	delete(m.state.Submissions[userID], location)
	if len(m.state.Submissions[userID]) == 0 {
		delete(m.state.Submissions, userID)
	}
	m.Log.LogSession(ctx, m.Namespace, userID, "", "delete_submission")
	return m.persist(ctx)
}

// HandleMessage offers a message to the session of its author.
func (m *Manager[T]) HandleMessage(ctx context.Context, msg gateway.Message) (bool, error) {
	return m.handle(ctx, msg.AuthorID, msg.ChannelID, MessageEvent(msg))
}

// HandleInteraction offers a control activation to the session of the user
// who clicked it.
func (m *Manager[T]) HandleInteraction(ctx context.Context, it gateway.Interaction) (bool, error) {
	return m.handle(ctx, it.UserID, it.ChannelID, InteractionEvent(it))
}

func (m *Manager[T]) HandleModal(ctx context.Context, submit gateway.ModalSubmit) (bool, error) {
	return m.handle(ctx, submit.UserID, submit.ChannelID, ModalEvent(submit))
}

func (m *Manager[T]) handle(ctx context.Context, userID, channel string, ev Event) (bool, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	sess, ok := m.state.Sessions[userID]
	if !ok || sess.Channel != channel {
		return false, nil
	}
	env := m.env(sess.Channel)

	if ev.Interaction != nil {
		if token, ok := ParseToken(m.Namespace, actionCancel, ev.Interaction.CustomID); ok {
			if token != sess.CancelToken {
				return false, nil
			}
			m.discard(ctx, userID, sess)
			m.Log.LogSession(ctx, m.Namespace, userID, sess.Channel, "abandon")
			return true, m.persist(ctx)
		}
		token, ok := ParseToken(m.Namespace, actionSubmit, ev.Interaction.CustomID)
		if ok && token == sess.PreviewToken {
			_, err := m.finalize(ctx, userID, sess)
			if errors.Is(err, ErrNotComplete) {
				return true, m.persist(ctx)
			}
			return true, err
		}
	}

	consumed, err := Dispatch(ctx, env, sess.Doc, ev)
	if err != nil {
		observability.WizardEvents.WithLabelValues(m.Namespace, ev.Kind(), "error").Inc()
		m.Log.LogError(ctx, m.Namespace, userID, err)
		return false, err
	}
	if !consumed {
		observability.WizardEvents.WithLabelValues(m.Namespace, ev.Kind(), "ignored").Inc()
		return false, nil
	}
	observability.WizardEvents.WithLabelValues(m.Namespace, ev.Kind(), "consumed").Inc()

	if err := m.refresh(ctx, env, sess); err != nil {
		m.Log.LogError(ctx, m.Namespace, userID, err)
		if perr := m.persist(ctx); perr != nil {
			return true, errors.Join(err, perr)
		}
		return true, err
	}
	return true, m.persist(ctx)
}

// refresh advances the tree and keeps a single up-to-date preview at the
// bottom of the channel while the tree is complete.
func (m *Manager[T]) refresh(ctx context.Context, env *Env, sess *Session[T]) error {
	done, err := sess.Doc.Advance(ctx, env)
	if err != nil {
		return err
	}
	m.dropPreview(ctx, env, sess)
	if !done {
		return nil
	}

	content, err := sess.Doc.Preview()
	if err != nil {
		m.report(ctx, env, "Your form could not be previewed", err)
		return nil
	}
	token := env.lease(ctx)
	ref, err := env.Transport.Send(ctx, env.Channel, gateway.OutgoingMessage{
		Content: content,
		Rows: [][]gateway.Button{{{
			CustomID: TokenCustomID(m.Namespace, actionSubmit, token),
			Label:    "Submit",
			Style:    gateway.ButtonSuccess,
		}}},
	})
	if err != nil {
		env.release(ctx, token)
		return fmt.Errorf("failed to send preview: %w", err)
	}
	sess.Preview = ref
	sess.PreviewToken = token
	return nil
}

func (m *Manager[T]) dropPreview(ctx context.Context, env *Env, sess *Session[T]) {
	env.retire(ctx, sess.Preview, sess.PreviewToken)
	sess.Preview = gateway.MessageRef{}
	sess.PreviewToken = 0
}

// report posts a failure into the editing channel.
func (m *Manager[T]) report(ctx context.Context, env *Env, what string, err error) {
	m.Log.LogError(ctx, m.Namespace, "", err)
	_, serr := env.Transport.Send(ctx, env.Channel, gateway.OutgoingMessage{
		Content: fmt.Sprintf(":x: %s:\n```\n%v\n```", what, err),
	})
	if serr != nil {
		env.warn(ctx, "send", serr)
	}
}

// TokensInUse returns the leased routing tokens of the module.
func (m *Manager[T]) TokensInUse(ctx context.Context) ([]int, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return m.state.Tokens.Tokens(), nil
}
