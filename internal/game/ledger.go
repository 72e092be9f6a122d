package game

import (
	"sort"

	"github.com/kiliankoe/promptcraft/internal/metrics"
	"github.com/kiliankoe/promptcraft/internal/store"
)

// SelectImage confirms which of the caller's own attempts goes up for voting.
// index is zero-based as the client numbers the images.
func (s *Session) SelectImage(identity string, index int) error {
	return s.apply(func(out *outbox) error {
		p := s.players[identity]
		if p == nil {
			return ErrUnknownPlayer
		}
		if p.IsAdmin {
			return ErrAdminCannotPlay
		}
		if s.phase != PhaseSelecting {
			return reject(ErrInvalidPhase, "Image selection is not open")
		}
		rs := p.round(s.round)
		if index < 0 || index >= len(rs.Attempts) {
			return ErrInvalidIndex
		}
		rs.Selected = index + 1
		rs.Confirmed = true
		s.journalSelection(p, rs)
		out.to(p, EvtImageSelected, Success{Success: true})
		s.checkAllSelected(out)
		return nil
	})
}

// CheckSelection is sent by clients whose selection countdown ran out.
func (s *Session) CheckSelection() {
	_ = s.apply(func(out *outbox) error {
		s.checkAllSelected(out)
		return nil
	})
}

func (s *Session) checkAllSelected(out *outbox) {
	if s.phase != PhaseSelecting {
		return
	}
	expired := s.now().Sub(s.selectionStart) >= s.settings.SelectionDuration
	active := s.connectedNonAdmins()
	waiting := 0
	for _, p := range active {
		if !p.round(s.round).Confirmed {
			waiting++
		}
	}
	if waiting == 0 || expired {
		s.startImageVoting(out)
		return
	}
	out.all(EvtSelectionWaiting, SelectionWaiting{WaitingCount: waiting, TotalPlayers: len(active)})
}

// defaultSelection picks the newest attempt that did not fail, or the newest
// attempt when all of them failed. It returns 0 for an empty round.
func defaultSelection(attempts []Attempt) int {
	for i := len(attempts) - 1; i >= 0; i-- {
		if !attempts[i].Failed() {
			return attempts[i].Index
		}
	}
	return len(attempts)
}

// autoSelect fills in the selection of every player who did not choose.
func (s *Session) autoSelect() {
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		rs := p.round(s.round)
		if rs.Selected > 0 || len(rs.Attempts) == 0 {
			continue
		}
		rs.Selected = defaultSelection(rs.Attempts)
		rs.Confirmed = true
		s.journalSelection(p, rs)
		s.log.Debug().Str("identity", p.Identity).Int("index", rs.Selected).Msg("auto-selected image")
	}
}

func (s *Session) journalSelection(p *Player, rs *RoundState) {
	a := rs.selection()
	if a == nil || s.gameID == "" {
		return
	}
	s.journal.SelectionRecorded(store.Selection{GameID: s.gameID, RoundID: s.roundID(), PlayerID: p.Identity, PromptID: a.ID})
}

func (s *Session) startImageVoting(out *outbox) {
	if s.phase != PhaseSelecting {
		return
	}
	s.autoSelect()
	s.setPhase(PhaseVotingImages)

	candidates := s.voteCandidates()
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin {
			out.to(p, EvtVoteOnImages, s.voteOnImagesFor(p, candidates))
		}
	}
	out.to(s.admin(), EvtAdminStatus, s.adminStatus())
}

func (s *Session) voteCandidates() []VoteCandidate {
	out := []VoteCandidate{}
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		a := p.round(s.round).selection()
		if a == nil {
			continue
		}
		out = append(out, VoteCandidate{SessionID: p.Identity, PlayerName: p.DisplayName, Image: viewOf(*a), PromptID: a.ID})
	}
	return out
}

func (s *Session) voteOnImagesFor(p *Player, candidates []VoteCandidate) VoteOnImages {
	v := VoteOnImages{Images: candidates, Round: s.round, MySessionID: p.Identity}
	if t := s.settings.TargetFor(s.round); t != nil {
		v.TargetImage.URL = t.URL
	}
	return v
}

// CastVote records identity's single vote of the round for the image that
// target submitted. promptID is optional and, when given, must name that image.
func (s *Session) CastVote(identity, target, promptID string) error {
	return s.apply(func(out *outbox) error {
		voter := s.players[identity]
		if voter == nil {
			return ErrUnknownPlayer
		}
		if voter.IsAdmin {
			return ErrAdminCannotPlay
		}
		if s.phase != PhaseVotingImages {
			return reject(ErrInvalidPhase, "Voting is not open")
		}
		if target == identity {
			return ErrSelfVote
		}
		vs := voter.round(s.round)
		if vs.HasVoted {
			return ErrAlreadyVoted
		}
		candidate := s.players[target]
		if candidate == nil || candidate.IsAdmin {
			return ErrInvalidTarget
		}
		cs := candidate.round(s.round)
		chosen := cs.selection()
		if chosen == nil || (promptID != "" && promptID != chosen.ID) {
			return ErrInvalidTarget
		}

		cs.VotesReceived++
		vs.HasVoted = true
		vs.VotedFor = target
		metrics.VotesTotal.Inc()
		if s.gameID != "" {
			s.journal.VoteRecorded(store.Vote{
				GameID:           s.gameID,
				RoundID:          s.roundID(),
				VoterID:          identity,
				VotedForPlayerID: target,
				VotedForPromptID: chosen.ID,
			})
		}
		out.to(voter, EvtVoteCast, Success{Success: true})
		out.to(s.admin(), EvtAdminStatus, s.adminStatus())
		s.checkVotingComplete(out)
		return nil
	})
}

// checkVotingComplete ends the round once every connected player voted or the
// quorum share of them did.
func (s *Session) checkVotingComplete(out *outbox) {
	if s.phase != PhaseVotingImages {
		return
	}
	active := s.connectedNonAdmins()
	if len(active) == 0 {
		return
	}
	votes := 0
	for _, p := range active {
		if p.round(s.round).HasVoted {
			votes++
		}
	}
	if votes == len(active) || float64(votes) >= float64(len(active))*s.settings.VoteQuorum {
		s.showRoundResults(out)
	}
}

// SkipVoting lets the admin cut the selection or the voting window short.
func (s *Session) SkipVoting(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can skip voting"); err != nil {
			return err
		}
		switch s.phase {
		case PhaseSelecting:
			s.startImageVoting(out)
		case PhaseVotingImages:
			s.showRoundResults(out)
		default:
			return reject(ErrInvalidPhase, "Not in voting phase")
		}
		return nil
	})
}

func (s *Session) showRoundResults(out *outbox) {
	if s.phase != PhaseVotingImages {
		return
	}
	s.setPhase(PhaseRoundResults)
	s.tally()

	results := s.roundResults()
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin {
			out.to(p, EvtRoundResults, RoundResults{Round: s.round, Results: results})
		}
	}
	out.to(s.admin(), EvtAdminRoundResults, AdminRoundResults{Round: s.round, Results: results, Players: s.playerStatuses(false)})

	if s.exporter != nil {
		report := s.roundReport()
		go func() {
			if err := s.exporter.ExportRound(report); err != nil {
				s.log.Error().Err(err).Int("round", report.Round).Msg("failed to export round results")
			}
		}()
	}
}

// tally sets the current round's score from the votes received and rebuilds
// the totals, so running it twice for a round changes nothing.
func (s *Session) tally() {
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		p.RoundScores[s.round-1] = p.round(s.round).VotesReceived
		p.Score = 0
		for _, v := range p.RoundScores {
			p.Score += v
		}
	}
}

func (s *Session) roundResults() []RoundResult {
	results := []RoundResult{}
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		rs := p.round(s.round)
		r := RoundResult{PlayerName: p.DisplayName, Votes: rs.VotesReceived, TotalScore: p.Score}
		if a := rs.selection(); a != nil {
			r.Image = a.DataURL()
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].TotalScore > results[j].TotalScore })
	return results
}

func (s *Session) finalResults() []FinalResult {
	results := []FinalResult{}
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		results = append(results, FinalResult{
			PlayerName:  p.DisplayName,
			TotalScore:  p.Score,
			RoundScores: p.RoundScores,
			Team:        p.Team,
			Character:   p.Character,
			PromptCount: p.PromptCount,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].TotalScore > results[j].TotalScore })
	return results
}

func (s *Session) roundReport() RoundReport {
	r := RoundReport{
		GameID:    s.gameID,
		Round:     s.round,
		Target:    s.settings.TargetFor(s.round),
		FinalGame: s.round == Rounds,
		At:        s.now(),
	}
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		rs := p.round(s.round)
		rp := ReportPlayer{
			Name:       p.DisplayName,
			Team:       p.Team,
			Prompts:    len(rs.Attempts),
			Votes:      rs.VotesReceived,
			RoundScore: p.RoundScores[s.round-1],
			TotalScore: p.Score,
		}
		if a := rs.selection(); a != nil {
			rp.Selected = a.Prompt
		}
		if q := s.players[rs.VotedFor]; q != nil {
			rp.VotedFor = q.DisplayName
		}
		r.Players = append(r.Players, rp)
	}
	return r
}
