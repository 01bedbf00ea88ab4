// Package advisor runs one advisory chat turn end to end.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finadvisor/internal/assembler"
	"finadvisor/internal/docstore"
	"finadvisor/internal/intent"
	"finadvisor/internal/llm"
	"finadvisor/internal/memory"
	"finadvisor/internal/storage"
	"finadvisor/internal/trust"
)

type State string

const (
	StateIdle              State = "IDLE"
	StateIntentDetected    State = "INTENT_DETECTED"
	StateContextAssembled  State = "CONTEXT_ASSEMBLED"
	StateProviderSelected  State = "PROVIDER_SELECTED"
	StateResponseGenerated State = "RESPONSE_GENERATED"
	StateValidated         State = "VALIDATED"
	StateMemoryStored      State = "MEMORY_STORED"
	StateDegraded          State = "DEGRADED_RESPONSE"
)

const (
	WarnContextUnavailable = "context_unavailable"
	WarnNoProvider         = "no_provider_available"
	WarnMemoryStoreFailed  = "memory_store_failed"
	WarnLowConfidence      = "low_confidence"
)

// DegradedMessage is returned whenever a stage fails. It never carries
// internal error details.
const DegradedMessage = "I'm sorry, I can't put together a reliable answer right now. Please try again in a few minutes."

var ErrInvalidRequest = errors.New("invalid request")

type Classifier interface {
	Classify(message string) intent.Result
}

type ContextAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (assembler.Context, error)
}

type Generator interface {
	Route(preferred string) (string, llm.Client, error)
	Generate(ctx context.Context, preferred string, messages []llm.Message) (llm.Response, error)
}

type Memory interface {
	CheckOwner(ctx context.Context, sessionID, userID string) error
	AddTurn(ctx context.Context, sessionID, userID, userMsg, aiResponse, intent string) error
}

// MemorySyncer refreshes the chat_memory document after a stored turn.
type MemorySyncer interface {
	SyncCategory(ctx context.Context, userID string, c docstore.Category, force bool) (bool, error)
}

type Deps struct {
	Classifier Classifier
	Assembler  ContextAssembler
	Router     Generator
	Memory     Memory
	Syncer     MemorySyncer
	Recorder   storage.Recorder
}

type Options struct {
	SystemPrompt      string
	DefaultLevel      assembler.Level
	PreferredProvider string
}

type Request struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id,omitempty"`
	Message      string `json:"message"`
	InsightLevel string `json:"insight_level,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

type Reply struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Intent    intent.Intent   `json:"intent"`
	Level     assembler.Level `json:"insight_level"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	Trust     *trust.Result   `json:"trust,omitempty"`
	Warnings  []string        `json:"warnings"`
	Degraded  bool            `json:"degraded"`
	State     State           `json:"state"`
	Trace     []State         `json:"-"`
}

type Advisor struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last map[string]storage.Event
}

func New(deps Deps, opts Options, logger *zap.Logger) *Advisor {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.DefaultLevel == "" {
		opts.DefaultLevel = assembler.Balanced
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{deps: deps, opts: opts, logger: logger, now: time.Now, last: make(map[string]storage.Event)}
}

// turn carries the state of one pipeline run.
type turn struct {
	reply  Reply
	req    Request
	prompt assembler.Context
	resp   llm.Response
	start  time.Time
}

func (t *turn) enter(s State) {
	t.reply.State = s
	t.reply.Trace = append(t.reply.Trace, s)
}

func (t *turn) warn(w string) {
	t.reply.Warnings = append(t.reply.Warnings, w)
}

// Ask runs the turn pipeline. Stage failures never surface as errors: they
// end in a degraded reply with warning flags. Only a malformed request or a
// session owned by another user returns an error.
func (a *Advisor) Ask(ctx context.Context, req Request) (Reply, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.Message == "" {
		return Reply{}, fmt.Errorf("%w: user_id and message are required", ErrInvalidRequest)
	}
	level := a.opts.DefaultLevel
	if req.InsightLevel != "" {
		l, err := assembler.ParseLevel(req.InsightLevel)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		level = l
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	} else if err := a.deps.Memory.CheckOwner(ctx, req.SessionID, req.UserID); errors.Is(err, memory.ErrSessionOwner) {
		return Reply{}, fmt.Errorf("session %s: %w", req.SessionID, err)
	} else if err != nil {
		a.logger.Warn("session owner check failed", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	preferred := req.Provider
	if preferred == "" {
		preferred = a.opts.PreferredProvider
	}

	t := &turn{req: req, start: a.now()}
	t.reply = Reply{TurnID: uuid.NewString(), SessionID: req.SessionID, Level: level, Warnings: []string{}}
	t.enter(StateIdle)
	log := a.logger.With(zap.String("user_id", req.UserID), zap.String("session_id", req.SessionID), zap.String("turn_id", t.reply.TurnID))

	cls := a.deps.Classifier.Classify(req.Message)
	t.reply.Intent = cls.Intent
	t.enter(StateIntentDetected)

	pc, err := a.deps.Assembler.Assemble(ctx, assembler.Request{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Query:         req.Message,
		Level:         level,
		SkipRetrieval: cls.Intent == intent.GeneralChat,
	})
	if err != nil {
		log.Warn("context assembly failed", zap.Error(err))
		return a.degrade(t, WarnContextUnavailable), nil
	}
	t.prompt = pc
	t.enter(StateContextAssembled)

	name, _, err := a.deps.Router.Route(preferred)
	if err != nil {
		log.Warn("no provider available", zap.Error(err))
		return a.degrade(t, WarnNoProvider), nil
	}
	t.reply.Provider = name
	t.enter(StateProviderSelected)

	resp, err := a.deps.Router.Generate(ctx, name, a.messages(pc, req.Message))
	if err != nil {
		log.Warn("generation failed on every provider", zap.Error(err))
		return a.degrade(t, WarnNoProvider), nil
	}
	t.resp = resp
	t.reply.Provider, t.reply.Model = resp.Provider, resp.Model
	t.reply.Message = resp.Content
	t.enter(StateResponseGenerated)

	vr := trust.Validate(resp.Content, pc.Facts)
	t.reply.Trust = &vr
	if !vr.Passed {
		t.warn(WarnLowConfidence)
	}
	t.enter(StateValidated)

	if err := a.deps.Memory.AddTurn(ctx, req.SessionID, req.UserID, req.Message, resp.Content, string(cls.Intent)); err != nil {
		log.Warn("memory store failed", zap.Error(err))
		return a.degrade(t, WarnMemoryStoreFailed), nil
	}
	t.enter(StateMemoryStored)

	if a.deps.Syncer != nil {
		if _, err := a.deps.Syncer.SyncCategory(ctx, req.UserID, docstore.CategoryChatMemory, false); err != nil {
			log.Warn("chat memory document refresh failed", zap.Error(err))
		}
	}

	a.record(t)
	log.Info("turn completed",
		zap.String("intent", string(cls.Intent)),
		zap.String("provider", t.reply.Provider),
		zap.Int("trust_score", vr.Score),
		zap.Bool("trust_passed", vr.Passed),
		zap.Strings("sections", pc.Sections))
	return t.reply, nil
}

func (a *Advisor) messages(pc assembler.Context, question string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: a.opts.SystemPrompt + "\n\n" + pc.Text},
		{Role: llm.RoleUser, Content: question},
	}
}

func (a *Advisor) degrade(t *turn, warning string) Reply {
	t.warn(warning)
	t.reply.Message = DegradedMessage
	t.reply.Degraded = true
	t.reply.Model = ""
	t.enter(StateDegraded)
	a.record(t)
	return t.reply
}

// record appends the audit event and keeps it as the user's last turn.
func (a *Advisor) record(t *turn) {
	ev := storage.Event{
		ID:                t.reply.TurnID,
		Timestamp:         t.start.UTC(),
		UserID:            t.req.UserID,
		SessionID:         t.req.SessionID,
		UserMessage:       t.req.Message,
		AssistantResponse: t.reply.Message,
		Intent:            string(t.reply.Intent),
		InsightLevel:      string(t.reply.Level),
		Prompt:            t.prompt.Text,
		Sections:          t.prompt.Sections,
		Provider:          t.reply.Provider,
		Model:             t.reply.Model,
		TotalTokens:       t.resp.TotalTokens,
		Warnings:          append([]string(nil), t.reply.Warnings...),
		State:             string(t.reply.State),
		Degraded:          t.reply.Degraded,
		DurationMS:        a.now().Sub(t.start).Milliseconds(),
	}
	if t.reply.Trust != nil {
		ev.TrustScore = t.reply.Trust.Score
		ev.TrustPassed = t.reply.Trust.Passed
		ev.Issues = t.reply.Trust.Issues
	}

	a.mu.Lock()
	a.last[ev.UserID] = ev
	a.mu.Unlock()

	if a.deps.Recorder != nil {
		if err := a.deps.Recorder.AppendInteraction(ev); err != nil {
			a.logger.Warn("audit append failed", zap.String("turn_id", ev.ID), zap.Error(err))
		}
	}
}

// LastTurn returns the user's most recent turn, including the assembled
// prompt. It falls back to the audit log after a restart.
func (a *Advisor) LastTurn(userID string) (storage.Event, bool, error) {
	a.mu.RLock()
	ev, ok := a.last[userID]
	a.mu.RUnlock()
	if ok || a.deps.Recorder == nil {
		return ev, ok, nil
	}
	return a.deps.Recorder.LastForUser(userID)
}
