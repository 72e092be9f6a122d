package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRecorder struct {
	Noop
	mu     sync.Mutex
	ops    []string
	urls   map[string]string
	failOn string
}

func (r *recordingRecorder) note(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	if op == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingRecorder) CreateGame(context.Context, Game) error   { return r.note("game") }
func (r *recordingRecorder) CreateRound(context.Context, Round) error { return r.note("round") }
func (r *recordingRecorder) SavePrompt(context.Context, Prompt) error { return r.note("prompt") }
func (r *recordingRecorder) SaveVote(context.Context, Vote) error     { return r.note("vote") }

func (r *recordingRecorder) SetPromptImageURL(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.urls == nil {
		r.urls = map[string]string{}
	}
	r.urls[id] = url
	return nil
}

func (r *recordingRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type fakeMedia struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *fakeMedia) Put(_ context.Context, path string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.paths = append(m.paths, path)
	return "https://media.test/" + path, nil
}

func TestAsyncPreservesWriteOrder(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAsync(rec, nil, zerolog.Nop())

	a.GameStarted(Game{ID: "g"})
	a.RoundStarted(Round{ID: "r", GameID: "g", RoundNumber: 1})
	a.PromptRecorded(Prompt{ID: "p"})
	a.VoteRecorded(Vote{GameID: "g"})

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, []string{"game", "round", "prompt", "vote"}, rec.snapshot())
}

func TestAsyncSwallowsFailures(t *testing.T) {
	rec := &recordingRecorder{failOn: "round"}
	a := NewAsync(rec, nil, zerolog.Nop())

	a.RoundStarted(Round{ID: "r"})
	a.PromptRecorded(Prompt{ID: "p"})

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, []string{"round", "prompt"}, rec.snapshot())
}

func TestAsyncUploadAttachesURL(t *testing.T) {
	rec := &recordingRecorder{}
	media := &fakeMedia{}
	a := NewAsync(rec, media, zerolog.Nop())

	got := make(chan string, 1)
	a.ImageProduced(Image{
		Data:        []byte{1, 2, 3},
		GameID:      "g1",
		PlayerID:    "0123456789abcdef",
		PlayerName:  "Ann Lee!",
		RoundNumber: 2,
		PromptID:    "p1",
		PromptIndex: 3,
	}, func(url string) { got <- url })

	select {
	case url := <-got:
		assert.Equal(t, "https://media.test/game_g1/Ann_Lee_01234567/round_2/prompt_3.png", url)
	case <-time.After(2 * time.Second):
		t.Fatal("upload callback not called")
	}

	require.NoError(t, a.Close(context.Background()))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "https://media.test/game_g1/Ann_Lee_01234567/round_2/prompt_3.png", rec.urls["p1"])
}

func TestAsyncUploadFailureSkipsCallback(t *testing.T) {
	media := &fakeMedia{err: errors.New("bucket gone")}
	a := NewAsync(nil, media, zerolog.Nop())

	called := false
	a.ImageProduced(Image{PromptID: "p"}, func(string) { called = true })

	require.NoError(t, a.Close(context.Background()))
	assert.False(t, called)
}

func TestAsyncDropsAfterClose(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAsync(rec, nil, zerolog.Nop())
	require.NoError(t, a.Close(context.Background()))

	a.GameStarted(Game{ID: "late"})
	assert.Empty(t, rec.snapshot())
}

type gatedMedia struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (m *gatedMedia) Put(_ context.Context, path string, _ []byte) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	<-m.release
	return "/media/" + path, nil
}

func TestAsyncCloseWaitsForEarlierUploadsAndRefusesNewOnes(t *testing.T) {
	rec := &recordingRecorder{}
	media := &gatedMedia{release: make(chan struct{})}
	a := NewAsync(rec, media, zerolog.Nop())
	a.ImageProduced(Image{PromptID: "early"}, nil)

	closed := make(chan error, 1)
	go func() { closed <- a.Close(context.Background()) }()
	require.Eventually(t, func() bool {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.draining
	}, time.Second, 5*time.Millisecond)

	a.ImageProduced(Image{PromptID: "late"}, nil)
	close(media.release)
	require.NoError(t, <-closed)

	media.mu.Lock()
	assert.Equal(t, 1, media.calls, "uploads requested during Close must not start")
	media.mu.Unlock()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.urls, "early")
	assert.NotContains(t, rec.urls, "late")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Bob_the_Builder", SanitizeName("Bob the Builder"))
	assert.Equal(t, "player", SanitizeName("!!!"))
	assert.Len(t, SanitizeName("abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijXYZ"), 50)
}
