package game

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReconnectDuringPlayReplaysAttempts(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)
	h.prompt(t, "p1", "first")
	h.prompt(t, "p1", "second")

	h.s.Disconnect(conn("p1"))
	h.rec.reset()
	if err := h.s.Join("p1", "conn-p1-b", "Player 1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	// same view as before, no narrator lines re-sent
	want := []string{EvtGameStarted, EvtImageGenerated, EvtImageGenerated}
	if diff := cmp.Diff(want, h.rec.eventsTo("conn-p1-b")); diff != "" {
		t.Fatalf("replay mismatch (-want +got):\n%s", diff)
	}

	var prompts []string
	var indexes []int
	h.rec.mu.Lock()
	for _, m := range h.rec.msgs {
		if m.connID == "conn-p1-b" && m.event == EvtImageGenerated {
			v := m.payload.(AttemptView)
			prompts = append(prompts, v.Prompt)
			indexes = append(indexes, v.ImageIndex)
		}
	}
	h.rec.mu.Unlock()
	if diff := cmp.Diff([]string{"first", "second"}, prompts); diff != "" {
		t.Fatalf("attempt order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, indexes); diff != "" {
		t.Fatalf("image index mismatch (-want +got):\n%s", diff)
	}
	if h.player("p1").PromptCount != 2 {
		t.Fatal("reconnecting must not reset the prompt count")
	}
}

func TestReconnectDuringVotingShowsBallot(t *testing.T) {
	h := newHarness(t, testSettings())
	ids := h.start(t, 3)
	h.toVoting(t, ids)

	h.s.Disconnect(conn("p2"))
	h.rec.reset()
	if err := h.s.Join("p2", "conn-p2-b", "Player 2"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	v, ok := h.rec.last("conn-p2-b", EvtVoteOnImages).(VoteOnImages)
	if !ok {
		t.Fatal("expected vote_on_images on reconnect")
	}
	if v.MySessionID != "p2" || len(v.Images) != 3 {
		t.Fatalf("unexpected ballot %+v", v)
	}
}

func TestReconnectDuringResultsDoesNotRescore(t *testing.T) {
	h := newHarness(t, testSettings())
	ids := h.start(t, 2)
	h.playRound(t, ids)
	score := h.player("p1").Score

	h.s.Disconnect(conn("p1"))
	if err := h.s.Join("p1", "conn-p1-b", "Player 1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	res, ok := h.rec.last("conn-p1-b", EvtRoundResults).(RoundResults)
	if !ok || res.Round != 1 {
		t.Fatalf("expected round 1 results on reconnect, got %+v", res)
	}
	if got := h.player("p1").Score; got != score {
		t.Fatalf("reconnect changed the score from %d to %d", score, got)
	}
	if res.Results[0].TotalScore != score {
		t.Fatalf("replayed results disagree with the score: %+v", res.Results)
	}
}

func TestAdminReconnectGetsDashboard(t *testing.T) {
	h := newHarness(t, testSettings())
	h.start(t, 2)

	h.s.Disconnect(conn("admin"))
	if err := h.s.Join("admin", "conn-admin-b", "GM1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	started, ok := h.rec.last("conn-admin-b", EvtAdminGameStarted).(AdminGameStarted)
	if !ok || started.Round != 1 || len(started.Players) != 2 {
		t.Fatalf("unexpected admin replay %+v", started)
	}
	if h.player("admin").DisplayName != AdminDisplayName {
		t.Fatal("admin should stay masked after reconnecting")
	}
}
