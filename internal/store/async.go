package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiliankoe/promptcraft/internal/metrics"
)

const (
	defaultQueue   = 512
	defaultTimeout = 10 * time.Second
)

type job struct {
	op string
	fn func(ctx context.Context) error
}

// Async turns a Recorder and MediaStore into fire-and-forget calls. Record
// writes are applied in submission order by a single worker so rows referencing
// a game or round never arrive before it. Uploads run concurrently and queue
// their URL update once done. Failures are logged and counted, never returned.
type Async struct {
	rec     Recorder
	media   MediaStore
	log     zerolog.Logger
	timeout time.Duration

	queue   chan job
	uploads sync.WaitGroup
	done    chan struct{}

	mu sync.RWMutex
	// draining stops new uploads; closed stops new writes.
	draining bool
	closed   bool
}

func NewAsync(rec Recorder, media MediaStore, log zerolog.Logger) *Async {
	if rec == nil {
		rec = Noop{}
	}
	if media == nil {
		media = Noop{}
	}
	a := &Async{
		rec:     rec,
		media:   media,
		log:     log.With().Str("component", "store").Logger(),
		timeout: defaultTimeout,
		queue:   make(chan job, defaultQueue),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.exec(j)
	}
}

func (a *Async) exec(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := j.fn(ctx); err != nil {
		metrics.StoreFailuresTotal.WithLabelValues(j.op).Inc()
		a.log.Error().Err(err).Str("op", j.op).Msg("store write failed")
	}
}

func (a *Async) enqueue(op string, fn func(ctx context.Context) error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn().Str("op", op).Msg("store closed, dropping write")
		return
	}
	select {
	case a.queue <- job{op: op, fn: fn}:
	default:
		metrics.StoreFailuresTotal.WithLabelValues(op).Inc()
		a.log.Warn().Str("op", op).Msg("store queue full, dropping write")
	}
}

func (a *Async) GameStarted(g Game) {
	a.enqueue("create_game", func(ctx context.Context) error { return a.rec.CreateGame(ctx, g) })
}

func (a *Async) GameEnded(gameID string, rounds int, at time.Time) {
	a.enqueue("end_game", func(ctx context.Context) error { return a.rec.EndGame(ctx, gameID, rounds, at) })
}

func (a *Async) RoundStarted(r Round) {
	a.enqueue("create_round", func(ctx context.Context) error { return a.rec.CreateRound(ctx, r) })
}

func (a *Async) RoundEnded(roundID string, at time.Time) {
	a.enqueue("end_round", func(ctx context.Context) error { return a.rec.EndRound(ctx, roundID, at) })
}

func (a *Async) PlayerRecorded(p Player) {
	a.enqueue("upsert_player", func(ctx context.Context) error { return a.rec.UpsertPlayer(ctx, p) })
}

func (a *Async) PromptRecorded(p Prompt) {
	a.enqueue("save_prompt", func(ctx context.Context) error { return a.rec.SavePrompt(ctx, p) })
}

func (a *Async) SelectionRecorded(s Selection) {
	a.enqueue("save_selection", func(ctx context.Context) error { return a.rec.SaveSelection(ctx, s) })
}

func (a *Async) VoteRecorded(v Vote) {
	a.enqueue("save_vote", func(ctx context.Context) error { return a.rec.SaveVote(ctx, v) })
}

// ImageProduced uploads img in the background, attaches the resulting URL to
// its prompt row and then calls onStored. onStored may be nil.
func (a *Async) ImageProduced(img Image, onStored func(url string)) {
	a.mu.RLock()
	if a.draining {
		a.mu.RUnlock()
		a.log.Warn().Str("prompt", img.PromptID).Msg("store closed, dropping upload")
		return
	}
	a.uploads.Add(1)
	a.mu.RUnlock()

	go func() {
		defer a.uploads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		path := MediaPath(img)
		url, err := a.media.Put(ctx, path, img.Data)
		if err != nil {
			metrics.StoreFailuresTotal.WithLabelValues("upload").Inc()
			a.log.Error().Err(err).Str("path", path).Msg("image upload failed")
			return
		}
		if url == "" {
			return
		}
		a.enqueue("set_prompt_image", func(ctx context.Context) error {
			return a.rec.SetPromptImageURL(ctx, img.PromptID, url)
		})
		if onStored != nil {
			onStored(url)
		}
	}()
}

// Close waits for in-flight uploads, then drains the write queue.
func (a *Async) Close(ctx context.Context) error {
	waited := make(chan struct{})
	go func() {
		// no Add may start once Wait is running
		a.mu.Lock()
		a.draining = true
		a.mu.Unlock()
		a.uploads.Wait()

		a.mu.Lock()
		if !a.closed {
			a.closed = true
			close(a.queue)
		}
		a.mu.Unlock()
		<-a.done
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("store did not drain"), ctx.Err())
	}
}
