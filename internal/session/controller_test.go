package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prepcall/prepcall/pkg/types"
)

type fakeEvaluator struct {
	mu     sync.Mutex
	calls  int
	pairs  []types.QAPair
	result *types.EvaluationResult
	err    error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, sessionID string, _ types.Transcript, pairs []types.QAPair) (*types.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.pairs = pairs
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &types.EvaluationResult{SessionID: sessionID, TotalScore: 21, MaxScore: 30, Percentage: 70}, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu     sync.Mutex
	stored []*types.EvaluationResult
}

func (f *fakeCache) Put(result *types.EvaluationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, result)
	return nil
}

func agentMsg(ts int64, text string) types.Message {
	return types.Message{ID: "a", TimestampMs: ts, Origin: types.OriginRemote, Text: text}
}

func userMsg(ts int64, text string) types.Message {
	return types.Message{ID: "u", TimestampMs: ts, Origin: types.OriginLocal, Text: text}
}

func TestNewController_Validation(t *testing.T) {
	onFinalized := func(*types.EvaluationResult) {}

	if _, err := NewController(Config{OnFinalized: onFinalized}); err == nil {
		t.Error("missing session id accepted")
	}
	if _, err := NewController(Config{SessionID: "s"}); err == nil {
		t.Error("missing OnFinalized accepted")
	}
	if _, err := NewController(Config{SessionID: "s", OnFinalized: onFinalized, Stream: newTestClient(t)}); err == nil {
		t.Error("stream without registry accepted")
	}
}

// However many trigger paths fire concurrently, the finalize sequence runs
// once: one evaluation, one navigation callback.
func TestController_FinalizeExactlyOnce(t *testing.T) {
	eval := &fakeEvaluator{}
	var finalized atomic.Int32

	ctrl, err := NewController(Config{
		SessionID: "race",
		Evaluator: eval,
		OnFinalized: func(*types.EvaluationResult) {
			finalized.Add(1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.AppendTranscription(agentMsg(1, "What is your greatest strength?"))
	ctrl.AppendTranscription(userMsg(2, "Persistence."))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		manual := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			if manual {
				ctrl.EndInterview()
			} else {
				ctrl.Teardown()
			}
		}()
	}
	wg.Wait()

	if got := finalized.Load(); got != 1 {
		t.Errorf("OnFinalized calls = %d, want 1", got)
	}
	if got := eval.callCount(); got != 1 {
		t.Errorf("evaluations = %d, want 1", got)
	}
	if got := ctrl.Phase(); got != PhaseFinalized {
		t.Errorf("phase = %s, want %s", got, PhaseFinalized)
	}
}

// The detector trigger fires synchronously from the transcript update, runs
// the full sequence, and delivers the score to the cache before navigation.
func TestController_DetectedTermination(t *testing.T) {
	eval := &fakeEvaluator{}
	cache := &fakeCache{}
	var got *types.EvaluationResult

	ctrl, err := NewController(Config{
		SessionID: "detected",
		Evaluator: eval,
		Cache:     cache,
		OnFinalized: func(result *types.EvaluationResult) {
			got = result
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctrl.AppendTranscription(agentMsg(1, "What is your greatest strength?"))
	ctrl.AppendTranscription(userMsg(2, "Persistence."))
	ctrl.AppendTranscription(agentMsg(3, "Thank you so much, have a great day!"))

	if got == nil {
		t.Fatal("OnFinalized not called after closing farewell")
	}
	if got.TotalScore != 21 {
		t.Errorf("TotalScore = %d, want 21", got.TotalScore)
	}
	if ctrl.Phase() != PhaseFinalized {
		t.Errorf("phase = %s, want %s", ctrl.Phase(), PhaseFinalized)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.stored) != 1 {
		t.Fatalf("cached results = %d, want 1", len(cache.stored))
	}
	if cache.stored[0].SessionID != "detected" {
		t.Errorf("cached session id = %q", cache.stored[0].SessionID)
	}

	eval.mu.Lock()
	defer eval.mu.Unlock()
	if len(eval.pairs) != 1 {
		t.Fatalf("extracted pairs = %d, want 1", len(eval.pairs))
	}
	if eval.pairs[0].Answer != "Persistence." {
		t.Errorf("answer = %q", eval.pairs[0].Answer)
	}
}

// A failed evaluation never blocks navigation.
func TestController_EvaluationFailureStillNavigates(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("service down")}
	called := make(chan *types.EvaluationResult, 1)

	ctrl, err := NewController(Config{
		SessionID: "fail",
		Evaluator: eval,
		OnFinalized: func(result *types.EvaluationResult) {
			called <- result
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.AppendTranscription(agentMsg(1, "What is X?"))

	ctrl.EndInterview()

	select {
	case result := <-called:
		if result != nil {
			t.Errorf("result = %+v, want nil after evaluation failure", result)
		}
	default:
		t.Fatal("OnFinalized not called")
	}
}

// An empty interview is not submitted for scoring.
func TestController_EmptyTranscriptSkipsEvaluation(t *testing.T) {
	eval := &fakeEvaluator{}
	var got *types.EvaluationResult
	set := false

	ctrl, err := NewController(Config{
		SessionID: "empty",
		Evaluator: eval,
		OnFinalized: func(result *types.EvaluationResult) {
			got = result
			set = true
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctrl.EndInterview()

	if !set {
		t.Fatal("OnFinalized not called")
	}
	if got != nil {
		t.Errorf("result = %+v, want nil for empty transcript", got)
	}
	if eval.callCount() != 0 {
		t.Errorf("evaluations = %d, want 0", eval.callCount())
	}
}

// A silent agent aborts the session after the configured timeout.
func TestController_AgentTimeout(t *testing.T) {
	finalized := make(chan struct{})
	var notices atomic.Int32

	ctrl, err := NewController(Config{
		SessionID:    "timeout",
		AgentTimeout: 30 * time.Millisecond,
		OnFinalized: func(*types.EvaluationResult) {
			close(finalized)
		},
		OnNotice: func(string) {
			notices.Add(1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("session not finalized after agent timeout")
	}
	if notices.Load() == 0 {
		t.Error("no user-visible notice for the unavailable agent")
	}
}

// The first remote message disarms the agent timeout.
func TestController_AgentMessageDisarmsTimeout(t *testing.T) {
	var finalized atomic.Int32

	ctrl, err := NewController(Config{
		SessionID:    "disarm",
		AgentTimeout: 40 * time.Millisecond,
		OnFinalized: func(*types.EvaluationResult) {
			finalized.Add(1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.AppendTranscription(agentMsg(1, "Hello! Welcome to your interview."))

	time.Sleep(120 * time.Millisecond)
	if got := finalized.Load(); got != 0 {
		t.Fatalf("session finalized %d times while the agent was active", got)
	}

	ctrl.EndInterview()
	if got := finalized.Load(); got != 1 {
		t.Errorf("OnFinalized calls = %d, want 1", got)
	}
}

func TestController_StartTwice(t *testing.T) {
	ctrl, err := NewController(Config{
		SessionID:   "twice",
		OnFinalized: func(*types.EvaluationResult) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
	ctrl.Teardown()
}

// A refused stream registration leaves the controller idle so it can be
// started again once the conflicting registration is released.
func TestController_StartRollsBackWhenRegistryRefuses(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("held", newTestClient(t)); err != nil {
		t.Fatal(err)
	}

	ctrl, err := NewController(Config{
		SessionID:   "held",
		Registry:    reg,
		Stream:      newTestClient(t),
		OnFinalized: func(*types.EvaluationResult) {},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := ctrl.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded while the session id was already registered")
	}
	if got := ctrl.Phase(); got != PhaseIdle {
		t.Errorf("phase after refused start = %s, want %s", got, PhaseIdle)
	}

	reg.Release("held")
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start after release = %v", err)
	}
	ctrl.Teardown()
}

// Teardown after a completed session is a no-op.
func TestController_TeardownAfterFinalize(t *testing.T) {
	var finalized atomic.Int32

	ctrl, err := NewController(Config{
		SessionID: "noop",
		OnFinalized: func(*types.EvaluationResult) {
			finalized.Add(1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctrl.EndInterview()
	ctrl.Teardown()
	ctrl.Teardown()

	if got := finalized.Load(); got != 1 {
		t.Errorf("OnFinalized calls = %d, want 1", got)
	}
}
