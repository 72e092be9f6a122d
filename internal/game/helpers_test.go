package game

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/promptcraft/internal/ai"
	"github.com/kiliankoe/promptcraft/internal/store"
)

type sent struct {
	connID    string
	broadcast bool
	event     string
	payload   any
}

// recorder is a Notifier that keeps everything it was asked to deliver.
type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) Emit(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{connID: connID, event: event, payload: payload})
}

func (r *recorder) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{broadcast: true, event: event, payload: payload})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// eventsTo lists the names of the events sent directly to connID.
func (r *recorder) eventsTo(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if !m.broadcast && m.connID == connID {
			out = append(out, m.event)
		}
	}
	return out
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.event == event {
			n++
		}
	}
	return n
}

// last returns the payload of the newest event with that name sent to connID,
// or broadcast when connID is empty.
func (r *recorder) last(connID, event string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		m := r.msgs[i]
		if m.event != event {
			continue
		}
		if (connID == "" && m.broadcast) || (connID != "" && m.connID == connID) {
			return m.payload
		}
	}
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// timers captures scheduled callbacks so tests decide when they fire.
type timers struct {
	mu  sync.Mutex
	fns []func()
}

func (ts *timers) schedule(_ time.Duration, f func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.fns = append(ts.fns, f)
}

func (ts *timers) fireAll() {
	ts.mu.Lock()
	fns := ts.fns
	ts.fns = nil
	ts.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// generator returns scripted results in order and records what it was given.
type generator struct {
	mu      sync.Mutex
	results []ai.Result
	prompts []string
	priors  [][]byte
}

func (g *generator) Generate(_ context.Context, prompt string, prior []byte) ai.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.priors = append(g.priors, prior)
	if len(g.results) == 0 {
		return ai.Success(bigImage(byte(len(g.prompts))), ai.Diagnostics{})
	}
	r := g.results[0]
	g.results = g.results[1:]
	return r
}

type generatorFunc func(ctx context.Context, prompt string, prior []byte) ai.Result

func (f generatorFunc) Generate(ctx context.Context, prompt string, prior []byte) ai.Result {
	return f(ctx, prompt, prior)
}

// bigImage is comfortably above the small-image threshold.
func bigImage(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 80*1024)
}

type journal struct {
	mu         sync.Mutex
	games      []store.Game
	prompts    []store.Prompt
	selections []store.Selection
	votes      []store.Vote
	ended      int
}

func (j *journal) GameStarted(g store.Game) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.games = append(j.games, g)
}

func (j *journal) GameEnded(string, int, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ended++
}

func (j *journal) RoundStarted(store.Round)                {}
func (j *journal) RoundEnded(string, time.Time)            {}
func (j *journal) PlayerRecorded(store.Player)             {}
func (j *journal) ImageProduced(store.Image, func(string)) {}

func (j *journal) PromptRecorded(p store.Prompt) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prompts = append(j.prompts, p)
}

func (j *journal) SelectionRecorded(s store.Selection) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.selections = append(j.selections, s)
}

func (j *journal) VoteRecorded(v store.Vote) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.votes = append(j.votes, v)
}

type harness struct {
	s      *Session
	rec    *recorder
	clock  *clock
	timers *timers
	gen    *generator
}

func testSettings() Settings {
	s := DefaultSettings()
	s.AdminCode = "GM1"
	return s
}

func newHarness(t *testing.T, settings Settings, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		rec:    &recorder{},
		clock:  &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		timers: &timers{},
		gen:    &generator{},
	}
	base := []Option{
		WithClock(h.clock.now),
		WithRand(rand.New(rand.NewSource(1))),
		WithScheduler(h.timers.schedule),
	}
	h.s = NewSession(settings, h.gen, h.rec, append(base, opts...)...)
	return h
}

func conn(identity string) string { return "conn-" + identity }

func (h *harness) join(t *testing.T, identity, name string) {
	t.Helper()
	if err := h.s.Join(identity, conn(identity), name); err != nil {
		t.Fatalf("join %s as %q: %v", identity, name, err)
	}
}

// lobby joins the admin and n players named p1..pn.
func (h *harness) lobby(t *testing.T, n int) []string {
	t.Helper()
	h.join(t, "admin", "GM1")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
		h.join(t, ids[i], fmt.Sprintf("Player %d", i+1))
	}
	return ids
}

// start joins n players, assigns teams and starts round 1.
func (h *harness) start(t *testing.T, n int) []string {
	t.Helper()
	ids := h.lobby(t, n)
	if err := h.s.AssignTeams("admin"); err != nil {
		t.Fatalf("assign teams: %v", err)
	}
	if err := h.s.StartGame("admin"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	return ids
}

func (h *harness) prompt(t *testing.T, identity, text string) {
	t.Helper()
	if err := h.s.SubmitPrompt(context.Background(), identity, text); err != nil {
		t.Fatalf("prompt from %s: %v", identity, err)
	}
}

// toSelection ends the round early and ticks past the transition minimum.
func (h *harness) toSelection(t *testing.T) {
	t.Helper()
	if err := h.s.EndRoundEarly("admin"); err != nil {
		t.Fatalf("end round: %v", err)
	}
	h.clock.advance(h.s.settings.TransitionMin)
	h.s.Tick()
	if got := h.s.Phase(); got != PhaseSelecting {
		t.Fatalf("expected phase %s, got %s", PhaseSelecting, got)
	}
}

func (h *harness) player(identity string) *Player {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.players[identity]
}
