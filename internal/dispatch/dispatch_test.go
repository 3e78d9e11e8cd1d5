package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"twind/internal/channel"
	"twind/internal/subchat"
	"twind/internal/tools"
	"twind/internal/types"
)

type stubPersona struct {
	mu         sync.Mutex
	activities []types.ActivityEvent
	resumed    []string
}

func (p *stubPersona) OnActivity(ev types.ActivityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activities = append(p.activities, ev)
}

func (p *stubPersona) OnResume(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumed = append(p.resumed, callID)
}

func (p *stubPersona) snapshot() ([]types.ActivityEvent, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ActivityEvent(nil), p.activities...), append([]string(nil), p.resumed...)
}

type stubAdapter struct {
	name   string
	events chan types.ActivityEvent
	closed bool
}

func (a *stubAdapter) Name() string                          { return a.name }
func (a *stubAdapter) Subscribe() <-chan types.ActivityEvent { return a.events }
func (a *stubAdapter) Close() error                          { a.closed = true; return nil }

func (a *stubAdapter) Send(_ context.Context, _, _ string) (string, error) {
	return "sent", nil
}

type scriptedLLM struct{ reply string }

func (s scriptedLLM) Complete(_ context.Context, _ string, _ []types.Message) (string, error) {
	return s.reply, nil
}

// reply collects the single result delivered to a ReplyFunc.
type reply struct {
	done   chan struct{}
	result string
	err    error
}

func newReply() *reply { return &reply{done: make(chan struct{})} }

func (r *reply) fn(result string, err error) {
	r.result, r.err = result, err
	close(r.done)
}

func (r *reply) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reply never fired")
	}
}

func testConfig() Config {
	return Config{QueueSize: 16, Tick: 20 * time.Millisecond, DrainTimeout: time.Second}
}

func TestSynchronousCallThroughLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := tools.NewRegistry(nil)
	reg.MustRegister(&tools.Tool{
		Name: "echo",
		Handler: func(_ context.Context, call types.ToolCall) (tools.Outcome, error) {
			return tools.Done(call.StringArg("text")), nil
		},
	})
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(reg, engine, &stubPersona{}, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	r := newReply()
	require.NoError(t, d.Submit(Event{
		Call:  &types.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "hi"}},
		Reply: r.fn,
	}))
	r.wait(t)
	assert.NoError(t, r.err)
	assert.Equal(t, "hi", r.result)

	cancel()
	require.NoError(t, <-ran)
}

func TestDelegationRoundTripThroughLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := subchat.NewEngine(scriptedLLM{reply: "FINDINGS: direct tone"}, subchat.DefaultConfig(), nil)
	reg := tools.NewRegistry(nil)
	reg.MustRegister(&tools.Tool{
		Name: "analyze",
		Handler: func(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
			ids, err := engine.SpawnMany(ctx, call.ID, subchat.RoleExtractor, []subchat.Request{
				{Opening: "analyze this", Title: "t"},
			})
			if err != nil {
				return tools.Outcome{}, err
			}
			return tools.Suspend(ids...), nil
		},
	})
	persona := &stubPersona{}
	d := New(reg, engine, persona, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	r := newReply()
	require.NoError(t, d.Submit(Event{
		Call:  &types.ToolCall{ID: "c-delegate", Name: "analyze", Args: map[string]any{}},
		Reply: r.fn,
	}))
	r.wait(t)
	assert.NoError(t, r.err)
	assert.Equal(t, "FINDINGS: direct tone", r.result)

	_, resumed := persona.snapshot()
	assert.Equal(t, []string{"c-delegate"}, resumed)

	cancel()
	require.NoError(t, <-ran)
	engine.Wait()
}

func TestFanOutResultsJoinInSpawnOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := subchat.NewEngine(scriptedLLM{reply: "FINDINGS: x"}, subchat.DefaultConfig(), nil)
	reg := tools.NewRegistry(nil)
	reg.MustRegister(&tools.Tool{
		Name: "fanout",
		Handler: func(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
			ids, err := engine.SpawnMany(ctx, call.ID, subchat.RoleExtractor, []subchat.Request{
				{Opening: "a"}, {Opening: "b"}, {Opening: "c"},
			})
			if err != nil {
				return tools.Outcome{}, err
			}
			return tools.Suspend(ids...), nil
		},
	})
	d := New(reg, engine, &stubPersona{}, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	r := newReply()
	require.NoError(t, d.Submit(Event{
		Call:  &types.ToolCall{ID: "c-fan", Name: "fanout", Args: map[string]any{}},
		Reply: r.fn,
	}))
	r.wait(t)
	assert.Equal(t, "FINDINGS: x\n\nFINDINGS: x\n\nFINDINGS: x", r.result)

	cancel()
	require.NoError(t, <-ran)
	engine.Wait()
}

func TestActivityRoutedToPersona(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := &stubAdapter{name: "telegram", events: make(chan types.ActivityEvent, 1)}
	persona := &stubPersona{}
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(tools.NewRegistry(nil), engine, persona, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	require.NoError(t, d.Submit(Event{Activity: &types.ActivityEvent{Channel: adapter.name, Author: "bob", Text: "hi"}}))
	require.Eventually(t, func() bool {
		acts, _ := persona.snapshot()
		return len(acts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	acts, _ := persona.snapshot()
	assert.Equal(t, "bob", acts[0].Author)

	cancel()
	require.NoError(t, <-ran)
}

func TestAdapterPumpFeedsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := &stubAdapter{name: "telegram", events: make(chan types.ActivityEvent, 1)}
	persona := &stubPersona{}
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(tools.NewRegistry(nil), engine, persona, []channel.Adapter{adapter}, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	adapter.events <- types.ActivityEvent{Channel: "telegram", Author: "carol", Text: "ping"}
	require.Eventually(t, func() bool {
		acts, _ := persona.snapshot()
		return len(acts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-ran)
	assert.True(t, adapter.closed)
}

func TestPanicInHandlerDoesNotKillLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := tools.NewRegistry(nil)
	reg.MustRegister(&tools.Tool{
		Name: "boom",
		Handler: func(_ context.Context, _ types.ToolCall) (tools.Outcome, error) {
			panic("handler bug")
		},
	})
	reg.MustRegister(&tools.Tool{
		Name: "ok",
		Handler: func(_ context.Context, _ types.ToolCall) (tools.Outcome, error) {
			return tools.Done("fine"), nil
		},
	})
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(reg, engine, &stubPersona{}, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	r1 := newReply()
	require.NoError(t, d.Submit(Event{Call: &types.ToolCall{ID: "c1", Name: "boom", Args: map[string]any{}}, Reply: r1.fn}))
	r1.wait(t)
	assert.ErrorContains(t, r1.err, "handler panicked")

	r2 := newReply()
	require.NoError(t, d.Submit(Event{Call: &types.ToolCall{ID: "c2", Name: "ok", Args: map[string]any{}}, Reply: r2.fn}))
	r2.wait(t)
	assert.Equal(t, "fine", r2.result)

	cancel()
	require.NoError(t, <-ran)
}

func TestCallWithoutReplyDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := tools.NewRegistry(nil)
	reg.MustRegister(&tools.Tool{
		Name: "ok",
		Handler: func(_ context.Context, _ types.ToolCall) (tools.Outcome, error) {
			return tools.Done("fine"), nil
		},
	})
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(reg, engine, &stubPersona{}, nil, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	// A call event without a reply path is dropped; the loop keeps serving.
	require.NoError(t, d.Submit(Event{Call: &types.ToolCall{ID: "c-noreply", Name: "ok", Args: map[string]any{}}}))

	r := newReply()
	require.NoError(t, d.Submit(Event{Call: &types.ToolCall{ID: "c1", Name: "ok", Args: map[string]any{}}, Reply: r.fn}))
	r.wait(t)
	assert.Equal(t, "fine", r.result)

	cancel()
	require.NoError(t, <-ran)
}

func TestDrainClosesResourcesAndRejectsSubmit(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := &stubAdapter{name: "telegram", events: make(chan types.ActivityEvent)}
	engine := subchat.NewEngine(scriptedLLM{}, subchat.DefaultConfig(), nil)
	d := New(tools.NewRegistry(nil), engine, &stubPersona{}, []channel.Adapter{adapter}, nil, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- d.Run(ctx) }()

	cancel()
	require.NoError(t, <-ran)
	assert.True(t, adapter.closed)

	err := d.Submit(Event{Activity: &types.ActivityEvent{}})
	assert.ErrorIs(t, err, ErrDraining)
}

func TestResumeTableEitherOrderExactlyOnce(t *testing.T) {
	// Resolve before Register.
	tbl := newResumeTable()
	tbl.Resolve("c1", []string{"one", "two"})

	fired := 0
	tbl.Register("c1", func(result string, err error) {
		fired++
		assert.Equal(t, "one\n\ntwo", result)
		assert.NoError(t, err)
	})
	assert.Equal(t, 1, fired)

	// Register before Resolve.
	fired = 0
	tbl.Register("c2", func(result string, err error) {
		fired++
		assert.Equal(t, "only", result)
	})
	tbl.Resolve("c2", []string{"only"})
	assert.Equal(t, 1, fired)
}
