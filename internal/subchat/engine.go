package subchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"twind/internal/prompt"
	"twind/internal/types"
)

// Request describes one subchat to spawn.
type Request struct {
	// Opening is the first user message of the sub-conversation.
	Opening string

	// Title is a short human-readable label.
	Title string
}

// Resumption reports that every subchat of a parent tool call reached a
// terminal state. Results are ordered by spawn order.
type Resumption struct {
	CallID  string
	Results []string
}

// group tracks the fan-in for one parent tool call.
type group struct {
	subs      []*Subchat
	remaining int
}

// Config tunes the engine.
type Config struct {
	// MaxActive caps concurrently running subchats.
	MaxActive int

	// Timeout bounds a single subchat conversation.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxActive: 16,
		Timeout:   10 * time.Minute,
	}
}

// Engine spawns subchats, drives their conversations through the LLM
// client, applies the role extraction rule on termination, and reports a
// Resumption once all subchats of a tool call are done.
type Engine struct {
	mu       sync.Mutex
	llm      types.LLMClient
	cfg      Config
	rules    map[Role]Rule
	subchats map[string]*Subchat
	groups   map[string]*group

	resumptions chan Resumption
	wg          sync.WaitGroup
	log         *zap.Logger
}

// NewEngine creates a delegation engine.
func NewEngine(llm types.LLMClient, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultConfig().MaxActive
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Engine{
		llm:         llm,
		cfg:         cfg,
		rules:       make(map[Role]Rule),
		subchats:    make(map[string]*Subchat),
		groups:      make(map[string]*group),
		resumptions: make(chan Resumption, 64),
		log:         log.Named("subchat"),
	}
}

// SetRule overrides the extraction rule for a role. Call before spawning.
func (e *Engine) SetRule(role Role, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[role] = rule
}

// Resumptions is consumed by the dispatch core's resumption path.
func (e *Engine) Resumptions() <-chan Resumption {
	return e.resumptions
}

// Get returns a subchat by ID, or nil.
func (e *Engine) Get(id string) *Subchat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subchats[id]
}

// Spawn creates a single subchat for the tool call. Shorthand for
// SpawnMany with one request.
func (e *Engine) Spawn(ctx context.Context, callID string, role Role, req Request) (string, error) {
	ids, err := e.SpawnMany(ctx, callID, role, []Request{req})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SpawnMany creates the full set of subchats for one tool call and starts
// them. It returns immediately with their identifiers; the caller raises a
// Pending outcome with those IDs, suspending the call. All subchats of a
// call must be spawned in one SpawnMany so the fan-in count is fixed.
func (e *Engine) SpawnMany(ctx context.Context, callID string, role Role, reqs []Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no subchat requests for call %s", callID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.groups[callID]; exists {
		return nil, fmt.Errorf("call %s already has pending subchats", callID)
	}
	if active := e.countActiveLocked(); active+len(reqs) > e.cfg.MaxActive {
		return nil, fmt.Errorf("max active subchats reached: %d", e.cfg.MaxActive)
	}

	g := &group{remaining: len(reqs)}
	ids := make([]string, len(reqs))
	for i, req := range reqs {
		sub := &Subchat{
			id:           uuid.NewString(),
			parentCallID: callID,
			role:         role,
			opening:      req.Opening,
			title:        req.Title,
			index:        i,
			startTime:    time.Now(),
		}
		e.subchats[sub.id] = sub
		g.subs = append(g.subs, sub)
		ids[i] = sub.id
	}
	e.groups[callID] = g

	for _, sub := range g.subs {
		e.wg.Add(1)
		go e.run(ctx, sub)
	}

	e.log.Info("spawned subchats",
		zap.String("call_id", callID),
		zap.String("role", string(role)),
		zap.Int("count", len(ids)))

	return ids, nil
}

func (e *Engine) countActiveLocked() int {
	n := 0
	for _, sub := range e.subchats {
		if !sub.Status().Terminal() {
			n++
		}
	}
	return n
}

// run drives one subchat conversation to a terminal state.
func (e *Engine) run(ctx context.Context, sub *Subchat) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	sub.setStatus(StatusRunning)
	sub.appendMessage(types.Message{Role: types.RoleUser, Content: sub.opening})

	reply, err := e.llm.Complete(ctx, prompt.Lookup(string(sub.role)), sub.Transcript())
	if err != nil {
		sub.setStatus(StatusFailed)
		e.log.Warn("subchat conversation failed",
			zap.String("subchat_id", sub.id),
			zap.String("role", string(sub.role)),
			zap.Error(err))
	} else {
		sub.appendMessage(types.Message{Role: types.RoleAssistant, Content: reply})
	}

	// A failed conversation still resolves through the extraction rule;
	// with no matching assistant message it yields the role fallback.
	sub.setResult(e.ruleFor(sub.role).Extract(sub.Transcript()))
	sub.mu.Lock()
	sub.endTime = time.Now()
	sub.mu.Unlock()
	if err == nil {
		sub.setStatus(StatusCompleted)
	}

	e.finish(sub)
}

func (e *Engine) ruleFor(role Role) Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rule, ok := e.rules[role]; ok {
		return rule
	}
	return RuleFor(role)
}

// finish decrements the parent group's fan-in and, once every subchat of
// the call is terminal, emits exactly one Resumption with results in
// spawn order.
func (e *Engine) finish(sub *Subchat) {
	e.mu.Lock()
	g, ok := e.groups[sub.parentCallID]
	if !ok {
		e.mu.Unlock()
		return
	}
	g.remaining--
	if g.remaining > 0 {
		e.mu.Unlock()
		return
	}
	delete(e.groups, sub.parentCallID)
	results := make([]string, len(g.subs))
	for i, s := range g.subs {
		results[i] = s.Result()
	}
	e.mu.Unlock()

	e.log.Debug("subchat group complete",
		zap.String("call_id", sub.parentCallID),
		zap.Int("count", len(results)))

	e.resumptions <- Resumption{CallID: sub.parentCallID, Results: results}
}

// Wait blocks until all spawned subchats finish. Used in tests and during
// drain; in-flight subchats are otherwise abandoned on shutdown via their
// context.
func (e *Engine) Wait() {
	e.wg.Wait()
}
