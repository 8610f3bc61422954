package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/carecompanion/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubTransport records requests and fails the test if a second exchange
// starts while one is still pending.
type stubTransport struct {
	t       *testing.T
	mu      sync.Mutex
	reqs    []Request
	pending atomic.Int32
	respond func(req Request) (Reply, error)
	release chan struct{}
	entered chan struct{}
}

func newStub(t *testing.T, respond func(req Request) (Reply, error)) *stubTransport {
	return &stubTransport{t: t, respond: respond}
}

func (s *stubTransport) Send(ctx context.Context, req Request) (Reply, error) {
	if s.pending.Add(1) > 1 {
		s.t.Errorf("transport invoked while another request is pending")
	}
	defer s.pending.Add(-1)

	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
	return s.respond(req)
}

func (s *stubTransport) requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.reqs...)
}

func reply(sessionID, text string, agent Agent, source SourceType, citations ...string) func(Request) (Reply, error) {
	return func(Request) (Reply, error) {
		return Reply{SessionID: sessionID, Text: text, Agent: agent, Citations: citations, SourceType: source}, nil
	}
}

func TestNewControllerSeedsGreeting(t *testing.T) {
	c := NewController(newStub(t, reply("x", "y", AgentReceptionist, SourceNone)))
	defer c.Close()

	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAssistant, turns[0].Role)
	assert.Equal(t, AgentReceptionist, turns[0].Agent)
	assert.Equal(t, GreetingText, turns[0].Content)
	assert.Empty(t, c.SessionID())
	assert.False(t, c.Awaiting())
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	stub := newStub(t, reply("abc123", "hi", AgentReceptionist, SourceNone))
	c := NewController(stub)
	defer c.Close()

	for _, in := range []string{"", " ", "\t\n", "   \r\n  "} {
		assert.Equal(t, OutcomeIgnored, c.Submit(context.Background(), in))
	}
	assert.Len(t, c.Transcript(), 1)
	assert.Empty(t, c.SessionID())
	assert.False(t, c.Awaiting())
	assert.Empty(t, stub.requests())
}

func TestSubmitHappyPath(t *testing.T) {
	stub := newStub(t, reply("abc123", "Hello John", AgentReceptionist, SourceNone))
	c := NewController(stub)
	defer c.Close()

	out := c.Submit(context.Background(), "Hi, I'm John Smith")
	require.Equal(t, OutcomeReplied, out)

	turns := c.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.Equal(t, "Hi, I'm John Smith", turns[1].Content)
	assert.Equal(t, RoleAssistant, turns[2].Role)
	assert.Equal(t, "Hello John", turns[2].Content)
	assert.Equal(t, AgentReceptionist, turns[2].Agent)
	assert.Equal(t, SourceNone, turns[2].SourceType)
	assert.Empty(t, turns[2].Citations)
	assert.Equal(t, "abc123", c.SessionID())
	assert.False(t, c.Awaiting())

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].SessionID, "first request carries no session")
	assert.Equal(t, "Hi, I'm John Smith", reqs[0].Message)
}

func TestSubmitCarriesSessionForward(t *testing.T) {
	ids := []string{"abc123", "abc123", "rotated-9"}
	var n int
	stub := newStub(t, func(Request) (Reply, error) {
		id := ids[n]
		n++
		return Reply{SessionID: id, Text: "ok", Agent: AgentReceptionist}, nil
	})
	c := NewController(stub)
	defer c.Close()

	c.Submit(context.Background(), "one")
	c.Submit(context.Background(), "two")
	c.Submit(context.Background(), "three")
	c.Submit(context.Background(), "four")

	reqs := stub.requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "", reqs[0].SessionID)
	assert.Equal(t, "abc123", reqs[1].SessionID)
	assert.Equal(t, "abc123", reqs[2].SessionID)
	assert.Equal(t, "rotated-9", reqs[3].SessionID)
}

func TestSubmitFailureAppendsApology(t *testing.T) {
	fail := false
	stub := newStub(t, func(req Request) (Reply, error) {
		if fail {
			return Reply{}, errors.New("dial tcp 127.0.0.1:8000: connection refused")
		}
		return Reply{SessionID: "abc123", Text: "Hello", Agent: AgentReceptionist}, nil
	})
	c := NewController(stub)
	defer c.Close()

	require.Equal(t, OutcomeReplied, c.Submit(context.Background(), "Hi"))
	fail = true
	before := len(c.Transcript())

	require.Equal(t, OutcomeFailed, c.Submit(context.Background(), "trigger failure"))

	turns := c.Transcript()
	require.Len(t, turns, before+2)
	user, apology := turns[before], turns[before+1]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "trigger failure", user.Content)
	assert.Equal(t, RoleAssistant, apology.Role)
	assert.Equal(t, ApologyText, apology.Content)
	assert.Empty(t, apology.Agent)
	assert.Empty(t, apology.Citations)
	assert.Empty(t, apology.SourceType)
	assert.NotContains(t, apology.Content, "connection refused")
	assert.Equal(t, "abc123", c.SessionID(), "failure must not touch the session")
	assert.False(t, c.Awaiting())

	fail = false
	require.Equal(t, OutcomeReplied, c.Submit(context.Background(), "again"))
	assert.Equal(t, "abc123", stub.requests()[2].SessionID)
}

func TestSubmitTreatsMalformedReplyAsFailure(t *testing.T) {
	c := NewController(newStub(t, func(Request) (Reply, error) {
		return Reply{Text: "no session"}, nil
	}))
	defer c.Close()

	require.Equal(t, OutcomeFailed, c.Submit(context.Background(), "hello"))
	assert.Equal(t, ApologyText, c.Snapshot().Last().Content)
	assert.Empty(t, c.SessionID())
}

func TestSubmitRecoversTransportPanic(t *testing.T) {
	c := NewController(TransportFunc(func(context.Context, Request) (Reply, error) {
		panic("nil map")
	}))
	defer c.Close()

	require.Equal(t, OutcomeFailed, c.Submit(context.Background(), "hello"))
	assert.False(t, c.Awaiting())
	assert.Len(t, c.Transcript(), 3)
}

func TestSubmitCitationsKeepOrder(t *testing.T) {
	c := NewController(newStub(t, reply("s1", "Limit sodium.", AgentClinical, SourceKnowledgeBase, "Doc A", "Doc B", "Doc A")))
	defer c.Close()

	c.Submit(context.Background(), "diet advice?")
	last := c.Snapshot().Last()
	assert.Equal(t, []string{"Doc A", "Doc B", "Doc A"}, last.Citations)
	assert.Equal(t, AgentClinical, last.Agent)
	assert.Equal(t, SourceKnowledgeBase, last.SourceType)
}

func TestTranscriptIsACopy(t *testing.T) {
	c := NewController(newStub(t, reply("s1", "ok", AgentClinical, SourceWeb, "Doc A")))
	defer c.Close()
	c.Submit(context.Background(), "q")

	turns := c.Transcript()
	turns[2].Citations[0] = "tampered"
	turns[0].Content = "tampered"

	again := c.Transcript()
	assert.Equal(t, "Doc A", again[2].Citations[0])
	assert.Equal(t, GreetingText, again[0].Content)
}

func TestSubmitSingleFlight(t *testing.T) {
	stub := newStub(t, reply("abc123", "Hello", AgentReceptionist, SourceNone))
	stub.release = make(chan struct{})
	stub.entered = make(chan struct{}, 1)
	c := NewController(stub)
	defer c.Close()

	done := make(chan Outcome, 1)
	go func() { done <- c.Submit(context.Background(), "first") }()

	<-stub.entered
	require.True(t, c.Awaiting())
	require.Len(t, c.Transcript(), 2)

	assert.Equal(t, OutcomeBusy, c.Submit(context.Background(), "second"))
	assert.Len(t, c.Transcript(), 2, "busy submission must not add a turn")

	c.SetInput("typed while waiting")
	assert.Equal(t, OutcomeBusy, c.SubmitInput(context.Background()))
	assert.Equal(t, "typed while waiting", c.Input(), "busy submission keeps the buffer")

	close(stub.release)
	assert.Equal(t, OutcomeReplied, <-done)
	assert.False(t, c.Awaiting())
	assert.Len(t, stub.requests(), 1)
	assert.Len(t, c.Transcript(), 3)
}

func TestConcurrentSubmitsNeverOverlap(t *testing.T) {
	stub := newStub(t, func(req Request) (Reply, error) {
		time.Sleep(2 * time.Millisecond)
		return Reply{SessionID: "s", Text: "re: " + req.Message, Agent: AgentReceptionist}, nil
	})
	c := NewController(stub)
	defer c.Close()

	var wg sync.WaitGroup
	var replied atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.Submit(context.Background(), fmt.Sprintf("msg %d", i)) == OutcomeReplied {
				replied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	turns := c.Transcript()
	require.Len(t, turns, 1+2*int(replied.Load()))
	for i := 1; i < len(turns); i += 2 {
		require.Equal(t, RoleUser, turns[i].Role)
		require.Equal(t, RoleAssistant, turns[i+1].Role)
		require.Equal(t, "re: "+turns[i].Content, turns[i+1].Content)
	}
}

func TestSubmitInputUsesAndClearsBuffer(t *testing.T) {
	stub := newStub(t, reply("s1", "ok", AgentReceptionist, SourceNone))
	c := NewController(stub)
	defer c.Close()

	c.Prefill("I have swelling in my legs")
	assert.Equal(t, "I have swelling in my legs", c.Input())
	assert.Len(t, c.Transcript(), 1, "prefill must not submit")
	assert.False(t, c.Awaiting())

	require.Equal(t, OutcomeReplied, c.SubmitInput(context.Background()))
	assert.Empty(t, c.Input())
	assert.Equal(t, "I have swelling in my legs", stub.requests()[0].Message)

	c.SetInput("   ")
	assert.Equal(t, OutcomeIgnored, c.SubmitInput(context.Background()))
	assert.Equal(t, "   ", c.Input(), "ignored submission leaves the buffer alone")
}

func TestSubmitInputNeverDropsConcurrentEdit(t *testing.T) {
	for i := 0; i < 200; i++ {
		stub := newStub(t, reply("s1", "ok", AgentReceptionist, SourceNone))
		c := NewController(stub)
		c.SetInput("first draft")

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SetInput("second draft")
		}()
		require.Equal(t, OutcomeReplied, c.SubmitInput(context.Background()))
		wg.Wait()

		sent := stub.requests()[0].Message
		switch sent {
		case "first draft":
			require.Equal(t, "second draft", c.Input(), "edit after submission must stay in the buffer")
		case "second draft":
			require.Empty(t, c.Input())
		default:
			t.Fatalf("unexpected message %q", sent)
		}
		c.Close()
	}
}

func TestSubmitCanceledContextFails(t *testing.T) {
	stub := newStub(t, reply("s1", "late", AgentReceptionist, SourceNone))
	stub.release = make(chan struct{})
	c := NewController(stub)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeFailed, c.Submit(ctx, "hello"))
	assert.False(t, c.Awaiting())
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	classes  []string
	awaiting []bool
}

func (r *recordingRecorder) ObserveSubmission(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingRecorder) ObserveExchange(_ time.Duration, class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = append(r.classes, class)
}

func (r *recordingRecorder) SetAwaiting(a bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awaiting = append(r.awaiting, a)
}

func TestRecorderSeesOutcomesAndFailureClass(t *testing.T) {
	rec := &recordingRecorder{}
	c := NewController(TransportFunc(func(context.Context, Request) (Reply, error) {
		return Reply{}, fmt.Errorf("decode: %w", protocol.ErrMalformedResponse)
	}), WithRecorder(rec))
	defer c.Close()

	c.Submit(context.Background(), "  ")
	c.Submit(context.Background(), "hello")

	assert.Equal(t, []string{"ignored", "failed"}, rec.outcomes)
	assert.Equal(t, []string{"malformed"}, rec.classes)
	assert.Equal(t, []bool{true, false}, rec.awaiting)
}
