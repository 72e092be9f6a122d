package game

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kiliankoe/promptcraft/internal/ai"
)

func TestPromptGraceWindow(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)

	// 3s past the bell is inside the 5s grace
	h.clock.advance(h.s.settings.RoundDuration + 3*time.Second)
	h.prompt(t, "p1", "a red barn")

	// 6s past is not
	h.clock.advance(3 * time.Second)
	err := h.s.SubmitPrompt(context.Background(), "p1", "a blue barn")
	if !errors.Is(err, ErrRoundEnded) {
		t.Fatalf("expected ErrRoundEnded, got %v", err)
	}
	if msg := UserMessage(err); msg != "Round has ended" {
		t.Fatalf("unexpected message %q", msg)
	}
	if n := len(h.player("p1").Rounds[0].Attempts); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
	if h.player("p1").PromptCount != 1 {
		t.Fatal("a rejected prompt should not count")
	}
}

func TestPromptRejections(t *testing.T) {
	h := newHarness(t, testSettings())
	h.lobby(t, 2)

	if err := h.s.SubmitPrompt(context.Background(), "p1", "too early"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if err := h.s.AssignTeams("admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := h.s.StartGame("admin"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.s.SubmitPrompt(context.Background(), "admin", "cheat"); !errors.Is(err, ErrAdminCannotPlay) {
		t.Fatalf("expected ErrAdminCannotPlay, got %v", err)
	}
	if err := h.s.SubmitPrompt(context.Background(), "nobody", "hi"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestSuccessIsMonotonicAndSeedsRefinement(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	first := bigImage(7)
	h.gen.results = []ai.Result{
		ai.Success(first, ai.Diagnostics{}),
		ai.Failure(ai.FailurePolicyViolation, "blocked"),
		ai.Success(bigImage(9), ai.Diagnostics{}),
	}

	h.prompt(t, "p1", "a cat")
	rs := &h.player("p1").Rounds[0]
	if !rs.Successful {
		t.Fatal("round should be marked successful")
	}

	h.prompt(t, "p1", "a cat in a hat")
	if !rs.Successful {
		t.Fatal("a failure must not clear the success flag")
	}
	if !bytes.Equal(rs.Refinement, first) {
		t.Fatal("a failure must not replace the refinement seed")
	}

	h.prompt(t, "p1", "a cat in a red hat")

	// first request has no prior, the next two refine the first success
	if h.gen.priors[0] != nil {
		t.Fatal("first prompt should not be a refinement")
	}
	for i := 1; i < 3; i++ {
		if !bytes.Equal(h.gen.priors[i], first) {
			t.Fatalf("prompt %d should refine the first image", i+1)
		}
	}

	if len(rs.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(rs.Attempts))
	}
	failed := rs.Attempts[1]
	if failed.Failure != ai.FailurePolicyViolation {
		t.Fatalf("expected policy_violation, got %q", failed.Failure)
	}
	if !bytes.Equal(failed.Image, placeholderPNG(1)) {
		t.Fatal("failed attempt should store the placeholder")
	}
	for i, a := range rs.Attempts {
		if a.Index != i+1 {
			t.Fatalf("attempt %d has index %d", i, a.Index)
		}
	}
	if errs := h.player("p1").Errors; len(errs) != 1 || errs[0].Round != 1 || errs[0].Prompt != "a cat in a hat" {
		t.Fatalf("unexpected error log %+v", errs)
	}
	if len(rs.Conversation) != 6 {
		t.Fatalf("expected 6 conversation entries, got %d", len(rs.Conversation))
	}
}

func TestSmallImageIsAFailure(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	h.gen.results = []ai.Result{ai.Success([]byte("tiny"), ai.Diagnostics{})}

	h.prompt(t, "p1", "something")

	a := h.player("p1").Rounds[0].Attempts[0]
	if a.Failure != ai.FailureSmallImage {
		t.Fatalf("expected small_image, got %q", a.Failure)
	}
	if a.SizeKB == nil {
		t.Fatal("size should be recorded")
	}
	if h.player("p1").Rounds[0].Successful {
		t.Fatal("a small image is not a success")
	}
	gerr, ok := h.rec.last(conn("p1"), EvtImageGenError).(ImageGenerationError)
	if !ok || gerr.ErrorType != ai.FailureSmallImage || !gerr.SuggestRetry {
		t.Fatalf("unexpected generation error payload %+v", gerr)
	}
}

func TestGeneratorPanicIsRecovered(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	h.s.gen = generatorFunc(func(context.Context, string, []byte) ai.Result { panic("boom") })

	h.prompt(t, "p1", "anything")

	a := h.player("p1").Rounds[0].Attempts[0]
	if a.Failure != ai.FailureOuterException {
		t.Fatalf("expected outer_exception, got %q", a.Failure)
	}
	if h.s.Phase() != PhasePlaying {
		t.Fatal("a generator fault must not disturb the round")
	}
}

func TestPromptEventsInOrder(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	h.rec.reset()

	h.prompt(t, "p1", "a lighthouse")

	want := []string{EvtPromptSent, EvtCharacterMessage, EvtImageGenerated}
	if diff := cmp.Diff(want, h.rec.eventsTo(conn("p1"))); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	upd := h.rec.last(conn("admin"), EvtPlayerPromptUpdated).(PlayerPromptUpdated)
	if upd.SessionID != "p1" || upd.PromptsSubmitted != 1 {
		t.Fatalf("unexpected admin update %+v", upd)
	}
	ack := h.rec.last(conn("p1"), EvtCharacterMessage).(CharacterState)
	if ack.Character != CharacterBud || ack.Message != NarratorLine(CharacterBud, 1) {
		t.Fatalf("round 1 should be narrated by Bud, got %+v", ack)
	}
}

func TestLateAttemptIsStoredInItsRound(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)

	started := make(chan struct{})
	release := make(chan struct{})
	h.s.gen = generatorFunc(func(context.Context, string, []byte) ai.Result {
		close(started)
		<-release
		return ai.Success(bigImage(3), ai.Diagnostics{})
	})

	done := make(chan error, 1)
	go func() { done <- h.s.SubmitPrompt(context.Background(), "p1", "slow one") }()
	<-started

	// The round moves on while the image is still generating
	h.toSelection(t)
	if err := h.s.SkipVoting("admin"); err != nil {
		t.Fatalf("skip selection: %v", err)
	}
	h.rec.reset()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}

	if n := len(h.player("p1").Rounds[0].Attempts); n != 1 {
		t.Fatalf("late attempt should be stored in round 1, got %d attempts", n)
	}
	if n := h.rec.count(EvtImageGenerated); n != 0 {
		t.Fatalf("late attempt should not be pushed to the client, got %d", n)
	}
	if h.player("p1").Rounds[0].Selected != 0 {
		t.Fatal("late attempt should not become a voting candidate")
	}
}

func TestRestartDropsInFlightGeneration(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)

	started := make(chan struct{})
	release := make(chan struct{})
	h.s.gen = generatorFunc(func(context.Context, string, []byte) ai.Result {
		close(started)
		<-release
		return ai.Success(bigImage(3), ai.Diagnostics{})
	})

	done := make(chan error, 1)
	go func() { done <- h.s.SubmitPrompt(context.Background(), "p1", "slow one") }()
	<-started

	if err := h.s.Restart("admin"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := len(h.player("p1").Rounds[0].Attempts); n != 0 {
		t.Fatalf("generation from before the restart should be dropped, got %d attempts", n)
	}
}

func TestPromptsAreJournaled(t *testing.T) {
	j := &journal{}
	h := newHarness(t, testSettings(), WithJournal(j))
	h.start(t, 2)
	h.gen.results = []ai.Result{ai.Failure(ai.FailureAPIError, "status 500")}

	h.prompt(t, "p1", "a boat")

	if len(j.games) != 1 {
		t.Fatalf("expected 1 game record, got %d", len(j.games))
	}
	if len(j.prompts) != 1 {
		t.Fatalf("expected 1 prompt record, got %d", len(j.prompts))
	}
	rec := j.prompts[0]
	if rec.GameID != j.games[0].ID || rec.PromptIndex != 1 || rec.ErrorType != string(ai.FailureAPIError) || rec.ErrorMessage != "status 500" {
		t.Fatalf("unexpected prompt record %+v", rec)
	}
}

func TestErrorReport(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	h.gen.results = []ai.Result{
		ai.Failure(ai.FailurePolicyViolation, "blocked"),
		ai.Failure(ai.FailureNoCandidates, "empty"),
	}
	h.prompt(t, "p1", "one")
	h.prompt(t, "p2", "two")

	r := h.s.ErrorReport()
	want := ErrorSummary{
		TotalErrors:   2,
		ErrorsByRound: map[int]int{1: 2, 2: 0, 3: 0},
		ErrorsByType:  map[ai.FailureKind]int{ai.FailurePolicyViolation: 1, ai.FailureNoCandidates: 1},
	}
	if diff := cmp.Diff(want, r.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if r.Errors[0].PlayerName != "Player 1" || r.Errors[0].SessionID != "p1" {
		t.Fatalf("unexpected first error %+v", r.Errors[0])
	}
}
