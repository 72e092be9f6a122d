package game

// isAdminCode reports whether name is the configured passphrase.
func (s *Session) isAdminCode(name string) bool {
	return s.settings.AdminCode != "" && name == s.settings.AdminCode
}

// electOnJoin builds the record for a new identity. The passphrase grants
// admin once; without a passphrase the first identity to join is admin.
func (s *Session) electOnJoin(identity, name string) (*Player, error) {
	p := &Player{Identity: identity, InternalName: name, DisplayName: name}
	switch {
	case s.isAdminCode(name) && s.adminID != "":
		return nil, ErrAdminExists
	case s.isAdminCode(name), s.settings.AdminCode == "" && s.adminID == "":
		s.promote(p)
	}
	return p, nil
}

// electOnRejoin reconciles a known identity's names on reconnect. An admin
// stays masked whatever name they come back with.
func (s *Session) electOnRejoin(p *Player, name string) error {
	switch {
	case p.IsAdmin:
		p.InternalName = name
		p.DisplayName = AdminDisplayName
	case s.isAdminCode(name) && s.adminID == "":
		p.InternalName = name
		s.promote(p)
		s.log.Info().Str("identity", p.Identity).Msg("reconnected player promoted to admin")
	case s.isAdminCode(name):
		return ErrAdminExists
	default:
		p.InternalName = name
		p.DisplayName = name
	}
	return nil
}

func (s *Session) promote(p *Player) {
	p.IsAdmin = true
	p.DisplayName = AdminDisplayName
	p.setTeam(TeamNone)
	s.adminID = p.Identity
}

// AssignTeams purges disconnected players, then shuffles the connected ones
// into two teams. Team A takes the extra player on odd counts. Running it
// again discards the previous assignment.
func (s *Session) AssignTeams(identity string) error {
	return s.apply(func(out *outbox) error {
		if err := s.requireAdmin(identity, "Only admin can assign teams"); err != nil {
			return err
		}
		connected := s.connectedNonAdmins()
		if len(connected) < 2 {
			return ErrNotEnoughPlayers
		}
		if n := s.removeDisconnectedNonAdmins(); n > 0 {
			s.log.Info().Int("removed", n).Msg("dropped disconnected players before team assignment")
		}
		for _, p := range s.playersInOrder() {
			if !p.IsAdmin {
				p.setTeam(TeamNone)
			}
		}

		s.rng.Shuffle(len(connected), func(i, j int) { connected[i], connected[j] = connected[j], connected[i] })
		half := (len(connected) + 1) / 2
		for i, p := range connected {
			if i < half {
				p.setTeam(TeamA)
			} else {
				p.setTeam(TeamB)
			}
		}
		if s.gameID != "" {
			for _, p := range connected {
				s.journal.PlayerRecorded(playerRecord(s.gameID, p))
			}
		}
		s.log.Info().Int("team_a", half).Int("team_b", len(connected)-half).Msg("teams assigned")

		out.all(EvtLobbyPlayers, LobbyPlayers{Players: s.lobbyPlayers()})
		s.pushAdminRoster(out)
		if s.phase != PhaseLobby {
			out.to(s.admin(), EvtAdminStatus, s.adminStatus())
		}
		return nil
	})
}
