package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/mugate/internal/completion"
	"github.com/ent0n29/mugate/internal/embedding"
	"github.com/ent0n29/mugate/internal/logging"
	"github.com/ent0n29/mugate/internal/observability"
	"github.com/ent0n29/mugate/internal/policy"
	"github.com/ent0n29/mugate/internal/prompt"
	"github.com/ent0n29/mugate/internal/reliability"
	"github.com/ent0n29/mugate/internal/session"
	"github.com/ent0n29/mugate/internal/vectorstore"
)

// EmptyReply stands in for a blank model response.
const EmptyReply = "(empty reply from model)"

const (
	defaultTopK           = 15
	defaultPersistTimeout = 30 * time.Second
)

type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type Response struct {
	Reply string `json:"reply"`
}

// Options configures a Pipeline. Embedder, Memory, Completer and History are required.
type Options struct {
	Embedder   embedding.Client
	Memory     vectorstore.Store
	Completer  completion.Client
	History    session.Store
	Persona    prompt.Persona
	Collection string
	TopK       int
	Search     vectorstore.SearchParams
	Params     completion.Params

	// PersistTimeout bounds the write-back, which runs detached from the
	// caller's cancellation so a disconnecting client still gets its turn stored.
	PersistTimeout time.Duration
	// Redactor, when set, masks PII in the stored memory text only.
	Redactor *policy.Redactor

	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// Pipeline runs one chat request through retrieval, prompt assembly,
// completion and write-back. It holds no per-request state.
type Pipeline struct {
	embedder       embedding.Client
	memory         vectorstore.Store
	completer      completion.Client
	history        session.Store
	persona        prompt.Persona
	collection     string
	topK           int
	search         vectorstore.SearchParams
	params         completion.Params
	persistTimeout time.Duration
	redactor       *policy.Redactor
	metrics        *observability.Metrics
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		embedder:       opts.Embedder,
		memory:         opts.Memory,
		completer:      opts.Completer,
		history:        opts.History,
		persona:        opts.Persona,
		collection:     opts.Collection,
		topK:           opts.TopK,
		search:         opts.Search,
		params:         opts.Params,
		persistTimeout: opts.PersistTimeout,
		redactor:       opts.Redactor,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		now:            opts.Now,
		newID:          opts.NewID,
	}
	if strings.TrimSpace(p.persona.Name) == "" {
		p.persona = prompt.DefaultPersona("Mu")
	}
	if p.topK <= 0 {
		p.topK = defaultTopK
	}
	if p.params == (completion.Params{}) {
		p.params = completion.DefaultParams()
	}
	if p.persistTimeout <= 0 {
		p.persistTimeout = defaultPersistTimeout
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	p.logger = logging.Component(p.logger, "chat")
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = func() string { return uuid.NewString() }
	}
	return p
}

// Persona returns the persona prompts are assembled with.
func (p *Pipeline) Persona() prompt.Persona {
	return p.persona
}

// Handle answers req. The returned error is always a *Error.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Response, error) {
	started := p.now()
	if strings.TrimSpace(req.Message) == "" {
		p.countRequest("invalid")
		return Response{}, &Error{Kind: KindValidation, Message: msgNoMessage}
	}
	log := p.logger.With("session_id", req.SessionID)

	stageStart := p.now()
	memories := p.retrieve(ctx, log, req.Message)
	p.metrics.ObserveStage(observability.StageRetrieve, p.now().Sub(stageStart))

	stageStart = p.now()
	text := prompt.Assemble(p.persona, memories, p.history.Get(req.SessionID), req.Message)
	p.metrics.ObserveStage(observability.StageAssemble, p.now().Sub(stageStart))

	stageStart = p.now()
	reply, err := p.completer.Complete(ctx, text, p.params)
	p.metrics.ObserveStage(observability.StageComplete, p.now().Sub(stageStart))
	if err != nil {
		code := reliability.Classify(err)
		p.metrics.DependencyError("completion", observability.StageComplete, code)
		p.countRequest("completion_failed")
		log.Error("completion failed", "kind", KindDependencyFatal, "code", code, "retryable", reliability.Retryable(err), "err", err)
		return Response{}, &Error{Kind: KindDependencyFatal, Message: msgCompletionFault, Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		p.metrics.ObserveIndicator("empty_reply")
		reply = EmptyReply
	}

	stageStart = p.now()
	p.persist(ctx, log, req.SessionID, req.Message, reply)
	p.history.Append(req.SessionID, session.Turn{User: req.Message, AI: reply})
	p.metrics.ObserveStage(observability.StagePersist, p.now().Sub(stageStart))
	p.reportSessions()

	p.countRequest("ok")
	p.metrics.ObserveStage(observability.StageRequestTotal, p.now().Sub(started))
	log.Debug("chat handled", "memories", len(memories), "reply_len", len(reply))
	return Response{Reply: reply}, nil
}

// retrieve degrades to no memories on any embedding or search failure.
func (p *Pipeline) retrieve(ctx context.Context, log *slog.Logger, message string) []string {
	res := p.embedder.Embed(ctx, message)
	if !res.OK() {
		p.degraded(log, "embedder", res.Err)
		p.observeHits(0)
		return nil
	}
	hits, err := p.memory.Search(ctx, p.collection, res.Vector, p.topK, p.search)
	if err != nil {
		p.degraded(log, "vectorstore", err)
		p.observeHits(0)
		return nil
	}
	memories := vectorstore.Texts(hits)
	p.observeHits(len(memories))
	return memories
}

func (p *Pipeline) degraded(log *slog.Logger, dependency string, err error) {
	code := reliability.Classify(err)
	p.metrics.DependencyError(dependency, observability.StageRetrieve, code)
	p.metrics.ObserveIndicator(dependency + "_degraded")
	log.Warn("memory retrieval degraded", "kind", KindDependencyDegraded, "dependency", dependency, "code", code, "err", err)
}

// persist stores the completed turn as a memory record. Failures are logged only.
func (p *Pipeline) persist(ctx context.Context, log *slog.Logger, sessionID, message, reply string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
	defer cancel()

	text := prompt.TurnText(p.persona, message, reply)
	if redacted, kinds := p.redactor.Redact(text); len(kinds) > 0 {
		text = redacted
		log.Info("redacted memory text", "kinds", kinds)
	}

	res := p.embedder.Embed(ctx, text)
	if !res.OK() {
		p.writeBackFailed(log, "embedder", "skipped", res.Err)
		return
	}
	pt := vectorstore.Point{
		ID:     p.newID(),
		Vector: res.Vector,
		Payload: vectorstore.Payload{
			Text:      text,
			Timestamp: p.now().UTC(),
			SessionID: sessionID,
		},
	}
	if err := p.memory.Upsert(ctx, p.collection, pt); err != nil {
		p.writeBackFailed(log, "vectorstore", "failed", err)
		return
	}
	if p.metrics != nil {
		p.metrics.MemoryWrites.WithLabelValues("ok").Inc()
	}
}

func (p *Pipeline) writeBackFailed(log *slog.Logger, dependency, result string, err error) {
	code := reliability.Classify(err)
	p.metrics.DependencyError(dependency, observability.StagePersist, code)
	if p.metrics != nil {
		p.metrics.MemoryWrites.WithLabelValues(result).Inc()
	}
	log.Warn("memory write-back failed", "kind", KindWriteBack, "dependency", dependency, "code", code, "err", err)
}

func (p *Pipeline) observeHits(n int) {
	if p.metrics != nil {
		p.metrics.MemoryHits.Observe(float64(n))
	}
}

func (p *Pipeline) countRequest(outcome string) {
	if p.metrics != nil {
		p.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) reportSessions() {
	counter, ok := p.history.(interface{ Count() int })
	if !ok || p.metrics == nil {
		return
	}
	p.metrics.ActiveSessions.Set(float64(counter.Count()))
}
