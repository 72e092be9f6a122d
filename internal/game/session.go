// Package game holds the single in-memory game session: the player registry,
// role assignment, the prompt pipeline, the phase machine and the vote ledger.
//
// All state lives in one Session guarded by one mutex. Each operation mutates
// under the lock, collects its notifications in an outbox and delivers them
// after the lock is released, in the order they were produced. The only call
// made without the lock is the image generation itself.
//
// After the last round the session broadcasts the leaderboard and immediately
// drops back to the lobby phase. Clients keep rendering the leaderboard until
// the admin acts, which is what lets clear_lobby run right after a game.
package game

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kiliankoe/promptcraft/internal/ai"
	"github.com/kiliankoe/promptcraft/internal/metrics"
	"github.com/kiliankoe/promptcraft/internal/store"
)

type Session struct {
	mu sync.Mutex
	// sendMu guards sentSeq; outboxes are flushed in the order of their seq.
	sendMu   sync.Mutex
	sendCond *sync.Cond
	nextSeq  uint64
	sentSeq  uint64

	settings Settings
	gen      ai.ImageGenerator
	notify   Notifier
	journal  Journal
	exporter Exporter
	log      zerolog.Logger
	now      func() time.Time
	rng      *rand.Rand
	schedule func(d time.Duration, f func())
	newID    func() string

	phase           Phase
	round           int
	roundStart      time.Time
	roundEnd        time.Time
	transitionStart time.Time
	selectionStart  time.Time
	// transitionEpoch invalidates deadline timers armed by earlier transitions.
	transitionEpoch uint64
	// gameSeq invalidates generations that were in flight across a restart.
	gameSeq  uint64
	gameID   string
	roundIDs [Rounds]string

	players map[string]*Player
	order   []string
	adminID string
}

type Option func(*Session)

func WithJournal(j Journal) Option {
	return func(s *Session) {
		if j != nil {
			s.journal = j
		}
	}
}

func WithExporter(e Exporter) Option { return func(s *Session) { s.exporter = e } }
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l.With().Str("component", "game").Logger() }
}
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }
func WithRand(r *rand.Rand) Option          { return func(s *Session) { s.rng = r } }

// WithScheduler replaces time.AfterFunc for the transition deadline.
func WithScheduler(f func(d time.Duration, fn func())) Option {
	return func(s *Session) { s.schedule = f }
}

func NewSession(settings Settings, gen ai.ImageGenerator, n Notifier, opts ...Option) *Session {
	s := &Session{
		settings: settings,
		gen:      gen,
		notify:   n,
		journal:  nopJournal{},
		log:      zerolog.Nop(),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		newID:    uuid.NewString,
		phase:    PhaseLobby,
		players:  make(map[string]*Player),
	}
	s.sendCond = sync.NewCond(&s.sendMu)
	for _, o := range opts {
		o(s)
	}
	return s
}

// apply runs fn under the state lock and delivers its outbox after releasing
// it. Each outbox gets a sequence number while the state lock is held and
// waits for its predecessor to be delivered, so notifications keep the order
// of the changes without a slow notifier blocking readers of the state.
func (s *Session) apply(fn func(out *outbox) error) error {
	out := &outbox{}
	s.mu.Lock()
	err := fn(out)
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	s.sendMu.Lock()
	for s.sentSeq != seq-1 {
		s.sendCond.Wait()
	}
	s.sendMu.Unlock()
	defer func() {
		s.sendMu.Lock()
		s.sentSeq = seq
		s.sendCond.Broadcast()
		s.sendMu.Unlock()
	}()
	out.flush(s.notify)
	return err
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

type Snapshot struct {
	Phase        Phase    `json:"phase"`
	Round        int      `json:"round"`
	PlayerCount  int      `json:"playerCount"`
	Connected    int      `json:"connected"`
	HasAdmin     bool     `json:"hasAdmin"`
	Target       *Target  `json:"target"`
	GameID       string   `json:"gameId,omitempty"`
	TimeLeftSecs *float64 `json:"timeLeftSecs"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Phase:        s.phase,
		Round:        s.round,
		HasAdmin:     s.adminID != "",
		Target:       s.settings.TargetFor(s.round),
		GameID:       s.gameID,
		TimeLeftSecs: s.timeRemaining(),
	}
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		snap.PlayerCount++
		if p.Connected() {
			snap.Connected++
		}
	}
	return snap
}

func (s *Session) admin() *Player {
	if s.adminID == "" {
		return nil
	}
	return s.players[s.adminID]
}

func (s *Session) requireAdmin(identity, msg string) error {
	if identity == "" || identity != s.adminID {
		return reject(ErrNotAdmin, msg)
	}
	return nil
}

func (s *Session) setPhase(to Phase) {
	if s.phase != to && !s.phase.CanTransitionTo(to) {
		s.log.Warn().Str("from", string(s.phase)).Str("to", string(to)).Msg("unexpected phase edge")
	}
	s.log.Info().Str("from", string(s.phase)).Str("to", string(to)).Int("round", s.round).Msg("phase")
	s.phase = to
	metrics.PhaseTransitionsTotal.WithLabelValues(string(to)).Inc()
}

func (s *Session) roundID() string {
	if s.round < 1 || s.round > Rounds {
		return ""
	}
	return s.roundIDs[s.round-1]
}

// timeRemaining reports the countdown of the current time-boxed phase.
func (s *Session) timeRemaining() *float64 {
	var left time.Duration
	now := s.now()
	switch s.phase {
	case PhasePlaying:
		left = s.roundEnd.Sub(now)
	case PhaseTransitioning:
		left = s.settings.TransitionMin - now.Sub(s.transitionStart)
	case PhaseSelecting:
		left = s.settings.SelectionDuration - now.Sub(s.selectionStart)
	default:
		return nil
	}
	secs := math.Max(0, left.Seconds())
	return &secs
}

// StartGame begins round 1. Every non-admin player needs a team.
func (s *Session) StartGame(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can start the game"); err != nil {
			return err
		}
		if s.phase != PhaseLobby {
			return reject(ErrInvalidPhase, "The game is already running")
		}
		var roster []*Player
		for _, p := range s.playersInOrder() {
			if !p.IsAdmin {
				roster = append(roster, p)
			}
		}
		if len(roster) == 0 {
			return ErrNoPlayers
		}
		for _, p := range roster {
			if p.Team == TeamNone {
				return ErrTeamsUnassigned
			}
		}

		s.gameSeq++
		s.gameID = s.newID()
		s.roundIDs = [Rounds]string{}
		for _, p := range s.playersInOrder() {
			p.resetProgress()
		}
		s.journal.GameStarted(store.Game{ID: s.gameID, StartedAt: s.now(), TotalPlayers: len(s.players)})
		for _, p := range s.playersInOrder() {
			s.journal.PlayerRecorded(playerRecord(s.gameID, p))
		}
		s.startRound(out, 1)
		return nil
	})
}

func (s *Session) startRound(out *outbox, round int) {
	s.round = round
	s.setPhase(PhasePlaying)
	s.roundStart = s.now()
	s.roundEnd = s.roundStart.Add(s.settings.RoundDuration)
	s.roundIDs[round-1] = s.newID()
	s.journal.RoundStarted(store.Round{ID: s.roundIDs[round-1], GameID: s.gameID, RoundNumber: round, StartedAt: s.roundStart})

	target := s.settings.TargetFor(round)
	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		p.PromptCount = 0
		p.Rounds[round-1] = RoundState{}
		out.to(p, EvtGameStarted, GameStarted{
			Round:     round,
			Target:    target,
			EndTime:   unixSeconds(s.roundEnd),
			Character: characterState(ActiveNarrator(p.Team, round), round, "", 0, 0, false),
		})
	}
	out.to(s.admin(), EvtAdminGameStarted, AdminGameStarted{
		Round:         round,
		Target:        target,
		TimeRemaining: s.timeRemaining(),
		Players:       s.playerStatuses(false),
	})
}

// Tick handles the periodic round_timer_check sent by every client. It
// reports the remaining round time, or advances an expired playing or
// transitioning phase.
func (s *Session) Tick() {
	_ = s.apply(func(out *outbox) error {
		now := s.now()
		switch s.phase {
		case PhasePlaying:
			left := s.roundEnd.Sub(now)
			if left <= 0 {
				s.startTransition(out)
				return nil
			}
			out.all(EvtTimerUpdate, TimerUpdate{TimeRemaining: left.Seconds()})
		case PhaseTransitioning:
			if now.Sub(s.transitionStart) >= s.settings.TransitionMin {
				s.startSelection(out)
			}
		}
		return nil
	})
}

// EndRoundEarly lets the admin close the playing window before it expires.
func (s *Session) EndRoundEarly(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can end round early"); err != nil {
			return err
		}
		if s.phase != PhasePlaying {
			return reject(ErrInvalidPhase, "Round is not in playing state")
		}
		s.startTransition(out)
		return nil
	})
}

func (s *Session) startTransition(out *outbox) {
	if s.phase != PhasePlaying {
		return
	}
	s.setPhase(PhaseTransitioning)
	s.transitionStart = s.now()
	s.transitionEpoch++
	epoch := s.transitionEpoch

	maxWait := int(math.Ceil(s.settings.TransitionMax.Seconds()))
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin {
			out.to(p, EvtTransitionScreen, TransitionScreen{Message: transitionMessage, MaxWait: maxWait})
		}
	}
	out.to(s.admin(), EvtAdminStatusUpdate, AdminStatusUpdate{Status: PhaseTransitioning, Round: s.round})

	s.schedule(s.settings.TransitionMax, func() { s.transitionDeadline(epoch) })
}

// transitionDeadline is the safety net for a transition nobody ticked past.
func (s *Session) transitionDeadline(epoch uint64) {
	_ = s.apply(func(out *outbox) error {
		if s.phase != PhaseTransitioning || s.transitionEpoch != epoch {
			return nil
		}
		s.log.Debug().Int("round", s.round).Msg("transition deadline reached")
		s.startSelection(out)
		return nil
	})
}

func (s *Session) startSelection(out *outbox) {
	if s.phase != PhaseTransitioning {
		return
	}
	s.setPhase(PhaseSelecting)
	s.selectionStart = s.now()
	s.journal.RoundEnded(s.roundID(), s.selectionStart)

	for _, p := range s.playersInOrder() {
		if p.IsAdmin {
			continue
		}
		out.to(p, EvtVotingStarted, s.votingStartedFor(p))
	}
	out.to(s.admin(), EvtAdminVotingStarted, AdminVotingStarted{Round: s.round, Players: s.playerStatuses(false)})
	out.to(s.admin(), EvtAdminStatus, s.adminStatus())
}

func (s *Session) votingStartedFor(p *Player) VotingStarted {
	rs := p.round(s.round)
	return VotingStarted{
		Round:           s.round,
		Duration:        int(s.settings.SelectionDuration.Seconds()),
		StartTime:       unixSeconds(s.selectionStart),
		DefaultSelected: rs != nil && rs.Confirmed,
	}
}

// NextRound moves from round results to the next round, or ends the game
// after the last one.
func (s *Session) NextRound(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can advance to next round"); err != nil {
			return err
		}
		if s.phase != PhaseRoundResults {
			return reject(ErrInvalidPhase, "Round results are not showing yet")
		}
		if s.round < Rounds {
			s.startRound(out, s.round+1)
			return nil
		}
		s.endGame(out)
		return nil
	})
}

func (s *Session) endGame(out *outbox) {
	s.setPhase(PhaseGameOver)
	s.journal.GameEnded(s.gameID, s.round, s.now())

	results := s.finalResults()
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin {
			out.to(p, EvtGameOver, GameOver{Results: results})
		}
	}
	out.to(s.admin(), EvtAdminGameOver, AdminGameOver{Results: results, Players: s.playerStatuses(false)})

	s.setPhase(PhaseLobby)
}

// Restart resets the session to an empty lobby while keeping every player
// and the admin. Teams are cleared.
func (s *Session) Restart(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can restart game"); err != nil {
			return err
		}
		s.log.Info().Str("from", string(s.phase)).Msg("game restarted")
		s.phase = PhaseLobby
		s.round = 0
		s.roundStart, s.roundEnd = time.Time{}, time.Time{}
		s.transitionStart, s.selectionStart = time.Time{}, time.Time{}
		s.transitionEpoch++
		s.gameSeq++
		s.gameID = ""
		s.roundIDs = [Rounds]string{}
		for _, p := range s.playersInOrder() {
			p.resetProgress()
			if !p.IsAdmin {
				p.setTeam(TeamNone)
			}
		}
		metrics.PhaseTransitionsTotal.WithLabelValues(string(PhaseLobby)).Inc()
		out.all(EvtGameRestarted, struct{}{})
		s.pushAdminRoster(out)
		return nil
	})
}

// AdminStatus sends the dashboard snapshot to the admin. Requests from
// anyone else are ignored without an error.
func (s *Session) AdminStatus(identity string) {
	_ = s.apply(func(out *outbox) error {
		if identity == "" || identity != s.adminID {
			return nil
		}
		out.to(s.admin(), EvtAdminStatus, s.adminStatus())
		return nil
	})
}

func (s *Session) adminStatus() AdminStatus {
	return AdminStatus{
		Status:        s.phase,
		Round:         s.round,
		TimeRemaining: s.timeRemaining(),
		Players:       s.playerStatuses(true),
		Target:        s.settings.TargetFor(s.round),
	}
}
