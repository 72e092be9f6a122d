package game

import (
	"fmt"
	"strings"

	"github.com/kiliankoe/promptcraft/internal/metrics"
)

// AdminDisplayName is shown for the admin no matter what name they joined with.
const AdminDisplayName = "Gamemaster"

// Join registers identity on connID, or rebinds an existing player after a
// reconnect. A reconnecting player mid-game is sent their current view.
func (s *Session) Join(identity, connID, name string) error {
	return s.apply(func(out *outbox) error {
		if identity == "" {
			return ErrUnknownPlayer
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Player%d", len(s.players)+1)
		}

		p, known := s.players[identity]
		if known {
			if err := s.electOnRejoin(p, name); err != nil {
				return err
			}
			p.ConnID = connID
			s.log.Info().Str("identity", identity).Bool("admin", p.IsAdmin).Str("phase", string(s.phase)).Msg("player reconnected")
		} else {
			var err error
			if p, err = s.electOnJoin(identity, name); err != nil {
				return err
			}
			p.ConnID = connID
			p.JoinedAt = s.now()
			s.players[identity] = p
			s.order = append(s.order, identity)
			if s.gameID != "" {
				s.journal.PlayerRecorded(playerRecord(s.gameID, p))
			}
			s.log.Info().Str("identity", identity).Bool("admin", p.IsAdmin).Msg("player joined")
		}
		s.updateConnectedGauge()

		if known && s.phase != PhaseLobby {
			s.pushAdminRoster(out)
			s.replay(out, p)
			return nil
		}

		if p.IsAdmin {
			out.to(p, EvtAdminJoined, AdminJoined{IsAdmin: true, Players: s.rosterStatuses()})
		} else {
			out.to(p, EvtGameJoined, s.gameJoinedFor(p))
		}
		if s.phase == PhaseLobby {
			out.all(EvtLobbyPlayers, LobbyPlayers{Players: s.lobbyPlayers()})
		}
		if !p.IsAdmin {
			s.pushAdminRoster(out)
		}
		return nil
	})
}

// Disconnect clears the connection of whichever player currently owns connID.
// A stale connection that was already replaced by a reconnect matches nobody.
func (s *Session) Disconnect(connID string) {
	_ = s.apply(func(out *outbox) error {
		if connID == "" {
			return nil
		}
		for _, p := range s.playersInOrder() {
			if p.ConnID != connID {
				continue
			}
			p.ConnID = ""
			s.updateConnectedGauge()
			s.log.Info().Str("identity", p.Identity).Str("phase", string(s.phase)).Msg("player disconnected")
			out.all(EvtPlayerLeft, PlayerLeft{PlayerName: p.DisplayName, SessionID: p.Identity})
			s.pushAdminRoster(out)
			if !p.IsAdmin {
				switch s.phase {
				case PhaseSelecting:
					s.checkAllSelected(out)
				case PhaseVotingImages:
					s.checkVotingComplete(out)
				}
			}
			return nil
		}
		return nil
	})
}

// BackToHome sends a player's own client back to the lobby screen.
func (s *Session) BackToHome(identity string) error {
	return s.apply(func(out *outbox) error {
		p := s.players[identity]
		if p == nil {
			return ErrUnknownPlayer
		}
		if p.IsAdmin {
			return reject(ErrAdminCannotPlay, "Admin cannot use Back to Home - use Restart Game instead")
		}
		out.to(p, EvtReturnToLobby, Message{Message: "Returned to lobby"})
		return nil
	})
}

// ClearLobby removes every non-admin player. Only allowed between games.
func (s *Session) ClearLobby(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can clear lobby"); err != nil {
			return err
		}
		if s.phase != PhaseLobby && s.phase != PhaseGameOver {
			return reject(ErrInvalidPhase, "Can only clear lobby when game is in lobby or game over state")
		}
		for _, p := range s.playersInOrder() {
			if !p.IsAdmin {
				s.evict(out, p)
			}
		}
		s.updateConnectedGauge()
		out.all(EvtLobbyPlayers, LobbyPlayers{Players: s.lobbyPlayers()})
		s.pushAdminRoster(out)
		return nil
	})
}

func (s *Session) RemovePlayer(identity, target string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can remove players"); err != nil {
			return err
		}
		if s.phase != PhaseLobby {
			return reject(ErrInvalidPhase, "Can only remove players when game is in lobby state")
		}
		if target == "" {
			return reject(ErrPlayerNotFound, "No player session_id provided")
		}
		if target == s.adminID {
			return ErrCannotRemoveAdmin
		}
		p := s.players[target]
		if p == nil {
			return ErrPlayerNotFound
		}
		s.evict(out, p)
		s.updateConnectedGauge()
		out.all(EvtLobbyPlayers, LobbyPlayers{Players: s.lobbyPlayers()})
		s.pushAdminRoster(out)
		return nil
	})
}

func (s *Session) evict(out *outbox, p *Player) {
	out.to(p, EvtError, Message{Message: "You have been removed from the lobby by admin"})
	out.to(p, EvtReturnToLobby, Message{Message: "Removed from lobby"})
	s.removeFromRegistry(p.Identity)
	s.log.Info().Str("identity", p.Identity).Msg("player removed")
}

func (s *Session) removeFromRegistry(identity string) {
	delete(s.players, identity)
	for i, id := range s.order {
		if id == identity {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// removeDisconnectedNonAdmins drops abandoned lobby entries. They may rejoin
// later as fresh players.
func (s *Session) removeDisconnectedNonAdmins() int {
	n := 0
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin && !p.Connected() {
			s.removeFromRegistry(p.Identity)
			n++
		}
	}
	return n
}

func (s *Session) playersInOrder() []*Player {
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		if p := s.players[id]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) connectedNonAdmins() []*Player {
	var out []*Player
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin && p.Connected() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) updateConnectedGauge() {
	n := 0
	for _, p := range s.players {
		if p.Connected() {
			n++
		}
	}
	metrics.ConnectedPlayers.Set(float64(n))
}

func (s *Session) lobbyPlayers() []LobbyPlayer {
	out := make([]LobbyPlayer, 0, len(s.order))
	for _, p := range s.playersInOrder() {
		out = append(out, LobbyPlayer{Name: p.DisplayName, Team: p.Team, IsAdmin: p.IsAdmin, IsConnected: p.Connected()})
	}
	return out
}

func (s *Session) gameJoinedFor(p *Player) GameJoined {
	count := 0
	for _, q := range s.players {
		if !q.IsAdmin {
			count++
		}
	}
	return GameJoined{
		Player: JoinedPlayer{
			Name:      p.DisplayName,
			Team:      p.Team,
			Character: p.Character,
			Score:     p.Score,
			IsAdmin:   p.IsAdmin,
		},
		GameState: GameStateView{
			Status:        s.phase,
			CurrentRound:  s.round,
			CurrentTarget: s.settings.TargetFor(s.round),
			PlayersCount:  count,
		},
		LobbyPlayers: s.lobbyPlayers(),
	}
}

func (s *Session) statusOf(p *Player, detailed bool) PlayerStatus {
	st := PlayerStatus{
		Name:        p.DisplayName,
		Team:        p.Team,
		IsAdmin:     p.IsAdmin,
		IsConnected: p.Connected(),
		SessionID:   p.Identity,
		Score:       p.Score,
	}
	rs := p.round(s.round)
	if rs == nil {
		return st
	}
	st.PromptsSubmitted = len(rs.Attempts)
	if !detailed {
		selected := rs.Confirmed
		voted := rs.HasVoted
		st.HasSelected, st.HasVoted = &selected, &voted
		return st
	}
	// the dashboard only shows selection and vote flags in the phases they mean something
	if s.phase == PhaseSelecting || s.phase == PhaseVotingImages {
		selected := rs.Selected > 0
		st.HasSelected = &selected
	}
	if s.phase == PhaseVotingImages {
		voted := rs.HasVoted
		st.HasVoted = &voted
	}
	return st
}

// playerStatuses lists non-admin players for the dashboard.
func (s *Session) playerStatuses(detailed bool) []PlayerStatus {
	out := []PlayerStatus{}
	for _, p := range s.playersInOrder() {
		if !p.IsAdmin {
			out = append(out, s.statusOf(p, detailed))
		}
	}
	return out
}

// rosterStatuses lists everyone, admin included.
func (s *Session) rosterStatuses() []PlayerStatus {
	out := make([]PlayerStatus, 0, len(s.order))
	for _, p := range s.playersInOrder() {
		out = append(out, s.statusOf(p, false))
	}
	return out
}

func (s *Session) pushAdminRoster(out *outbox) {
	out.to(s.admin(), EvtPlayerStatus, PlayerStatuses{Players: s.rosterStatuses()})
}
