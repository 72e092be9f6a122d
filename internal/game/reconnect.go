package game

import "math"

// replay sends a reconnecting player the view they would have if they had
// never dropped. Nothing is re-scored or re-narrated.
func (s *Session) replay(out *outbox, p *Player) {
	if p.IsAdmin {
		s.replayAdmin(out, p)
		return
	}
	rs := p.round(s.round)
	switch s.phase {
	case PhasePlaying:
		c := ActiveNarrator(p.Team, s.round)
		out.to(p, EvtGameStarted, GameStarted{
			Round:     s.round,
			Target:    s.settings.TargetFor(s.round),
			EndTime:   unixSeconds(s.roundEnd),
			Character: characterState(c, s.round, "", p.PromptCount, p.PromptCount, rs.Successful),
		})
		s.replayAttempts(out, p, rs)
	case PhaseTransitioning:
		left := s.settings.TransitionMax - s.now().Sub(s.transitionStart)
		out.to(p, EvtTransitionScreen, TransitionScreen{
			Message: transitionMessage,
			MaxWait: int(math.Ceil(math.Max(0, left.Seconds()))),
		})
	case PhaseSelecting:
		// the selection screen is built from the images the client holds
		s.replayAttempts(out, p, rs)
		out.to(p, EvtVotingStarted, s.votingStartedFor(p))
	case PhaseVotingImages:
		out.to(p, EvtVoteOnImages, s.voteOnImagesFor(p, s.voteCandidates()))
	case PhaseRoundResults:
		out.to(p, EvtRoundResults, RoundResults{Round: s.round, Results: s.roundResults()})
	}
}

func (s *Session) replayAttempts(out *outbox, p *Player, rs *RoundState) {
	if rs == nil {
		return
	}
	for _, a := range rs.Attempts {
		out.to(p, EvtImageGenerated, viewOf(a))
	}
}

func (s *Session) replayAdmin(out *outbox, admin *Player) {
	switch s.phase {
	case PhasePlaying:
		out.to(admin, EvtAdminGameStarted, AdminGameStarted{
			Round:         s.round,
			Target:        s.settings.TargetFor(s.round),
			TimeRemaining: s.timeRemaining(),
			Players:       s.playerStatuses(false),
		})
	case PhaseRoundResults:
		out.to(admin, EvtAdminRoundResults, AdminRoundResults{Round: s.round, Results: s.roundResults(), Players: s.playerStatuses(false)})
	default:
		out.to(admin, EvtAdminStatus, s.adminStatus())
	}
}
