package game

import (
	"context"
	"time"

	"github.com/kiliankoe/promptcraft/internal/ai"
	"github.com/kiliankoe/promptcraft/internal/metrics"
	"github.com/kiliankoe/promptcraft/internal/store"
)

const successResponse = "Image generated successfully"

// failureResponse is the assistant text stored with a failed attempt.
func failureResponse(kind ai.FailureKind) string {
	switch kind {
	case ai.FailurePolicyViolation:
		return "Your prompt may have violated content policies. Please try a different prompt."
	case ai.FailureSmallImage:
		return "Image generation returned an invalid result. Please try a different prompt."
	case ai.FailureAPIError, ai.FailureNoImage, ai.FailureNoCandidates:
		return "Image generation encountered an error. Please try again."
	}
	return "Image generation encountered an issue. Please try again."
}

// submission is what SubmitPrompt carries from the accepting step to the
// recording step.
type submission struct {
	identity string
	prompt   string
	round    int
	gameSeq  uint64
	prior    []byte
	at       time.Time
}

// SubmitPrompt accepts a prompt, generates its image and stores the attempt.
// It blocks for the duration of the generation, which runs without holding
// the session lock.
func (s *Session) SubmitPrompt(ctx context.Context, identity, prompt string) error {
	var sub submission
	err := s.apply(func(out *outbox) error {
		p := s.players[identity]
		if p == nil {
			return ErrUnknownPlayer
		}
		if p.IsAdmin {
			return ErrAdminCannotPlay
		}
		if s.phase != PhasePlaying {
			return reject(ErrInvalidPhase, "Game is not in playing state")
		}
		now := s.now()
		if now.After(s.roundEnd.Add(s.settings.PromptGrace)) {
			return ErrRoundEnded
		}

		p.PromptCount++
		rs := p.round(s.round)
		sub = submission{
			identity: identity,
			prompt:   prompt,
			round:    s.round,
			gameSeq:  s.gameSeq,
			prior:    rs.Refinement,
			at:       now,
		}

		c := ActiveNarrator(p.Team, s.round)
		out.to(p, EvtPromptSent, PromptSent{Prompt: prompt})
		out.to(p, EvtCharacterMessage, characterState(c, s.round, NarratorLine(c, p.PromptCount), max(0, p.PromptCount-1), p.PromptCount, rs.Successful))
		return nil
	})
	if err != nil {
		return err
	}

	res := s.generate(ctx, sub.prompt, sub.prior)

	return s.apply(func(out *outbox) error {
		s.recordAttempt(out, sub, res)
		return nil
	})
}

// generate calls the image generator and folds every way it can go wrong
// into a Result.
func (s *Session) generate(ctx context.Context, prompt string, prior []byte) (res ai.Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("image generator panicked")
			res = ai.Failure(ai.FailureOuterException, "generator panicked: %v", r)
		}
		metrics.GenerationSeconds.Observe(time.Since(started).Seconds())
	}()

	if s.gen == nil {
		return ai.Failure(ai.FailureException, "no image generator configured")
	}
	if s.settings.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.GenerationTimeout)
		defer cancel()
	}

	res = s.gen.Generate(ctx, prompt, prior)
	if res.Failure == ai.FailureNone && len(res.Image) == 0 {
		d := res.Diagnostics
		res = ai.Failure(ai.FailureNoImage, "API returned success but no image data")
		res.Diagnostics.FinishReason, res.Diagnostics.SafetyRatings = d.FinishReason, d.SafetyRatings
	}
	if res.OK() && s.settings.SmallImageKB > 0 {
		if kb := sizeKB(res.Image); kb < s.settings.SmallImageKB {
			img, d := res.Image, res.Diagnostics
			res = ai.Failure(ai.FailureSmallImage, "Image is unusually small (%.2f KB), likely a placeholder or policy violation response", kb)
			res.Image = img
			res.Diagnostics.FinishReason, res.Diagnostics.SafetyRatings = d.FinishReason, d.SafetyRatings
		}
	}
	return res
}

func sizeKB(b []byte) float64 { return float64(len(b)) / 1024 }

// recordAttempt stores a finished generation in the round it was submitted
// for, even when the session has moved on since.
func (s *Session) recordAttempt(out *outbox, sub submission, res ai.Result) {
	log := s.log.With().Str("identity", sub.identity).Int("round", sub.round).Logger()
	if sub.gameSeq != s.gameSeq {
		log.Info().Str("kind", string(res.Failure)).Msg("dropping generation from a previous game")
		return
	}
	p := s.players[sub.identity]
	if p == nil {
		log.Info().Msg("dropping generation for a removed player")
		return
	}
	rs := p.round(sub.round)

	a := Attempt{
		ID:          s.newID(),
		Index:       len(rs.Attempts) + 1,
		Prompt:      sub.prompt,
		SubmittedAt: sub.at,
		Failure:     res.Failure,
	}
	if len(res.Image) > 0 {
		kb := sizeKB(res.Image)
		a.SizeKB = &kb
	}
	if res.OK() {
		a.Image = res.Image
		a.AIResponse = successResponse
		rs.Successful = true
		rs.Refinement = res.Image
		metrics.PromptsTotal.WithLabelValues("success").Inc()
	} else {
		a.Image = placeholderPNG(sub.round)
		a.AIResponse = failureResponse(res.Failure)
		p.Errors = append(p.Errors, GenerationError{
			Round:        sub.round,
			Timestamp:    s.now(),
			ErrorType:    res.Failure,
			Prompt:       sub.prompt,
			ErrorMessage: res.Diagnostics.Message,
			FinishReason: res.Diagnostics.FinishReason,
			FileSizeKB:   a.SizeKB,
		})
		metrics.PromptsTotal.WithLabelValues(string(res.Failure)).Inc()
		log.Warn().Str("kind", string(res.Failure)).Str("detail", res.Diagnostics.Message).Msg("image generation failed")
	}
	rs.Conversation = append(rs.Conversation,
		ChatMessage{Role: "user", Content: sub.prompt},
		ChatMessage{Role: "assistant", Content: a.AIResponse},
	)
	rs.Attempts = append(rs.Attempts, a)

	s.journalAttempt(p, sub.round, a, res.Diagnostics)

	live := sub.round == s.round && (s.phase == PhasePlaying || s.phase == PhaseTransitioning || s.phase == PhaseSelecting)
	if !live {
		log.Info().Str("phase", string(s.phase)).Int("index", a.Index).Msg("late attempt stored")
		return
	}

	c := ActiveNarrator(p.Team, sub.round)
	if a.Failed() {
		line := ErrorLine(c)
		out.to(p, EvtCharacterMessage, characterState(c, sub.round, line, p.PromptCount, p.PromptCount, rs.Successful))
		out.to(p, EvtImageGenError, ImageGenerationError{Message: line, ErrorType: a.Failure, SuggestRetry: true})
	} else if c == CharacterSpud {
		out.to(p, EvtCharacterMessage, characterState(c, sub.round, NarratorLine(c, p.PromptCount), p.PromptCount, p.PromptCount, rs.Successful))
	}
	out.to(p, EvtImageGenerated, viewOf(a))
	out.to(s.admin(), EvtPlayerPromptUpdated, PlayerPromptUpdated{
		SessionID:        p.Identity,
		PlayerName:       p.DisplayName,
		PromptsSubmitted: len(rs.Attempts),
	})
}

func (s *Session) journalAttempt(p *Player, round int, a Attempt, d ai.Diagnostics) {
	if s.gameID == "" {
		return
	}
	rec := store.Prompt{
		ID:           a.ID,
		GameID:       s.gameID,
		RoundID:      s.roundIDs[round-1],
		PlayerID:     p.Identity,
		PromptIndex:  a.Index,
		Text:         a.Prompt,
		AIResponse:   a.AIResponse,
		SubmittedAt:  a.SubmittedAt,
		ErrorType:    string(a.Failure),
		ErrorMessage: d.Message,
		FinishReason: d.FinishReason,
		FileSizeKB:   a.SizeKB,
	}
	for _, r := range d.SafetyRatings {
		rec.SafetyRatings = append(rec.SafetyRatings, store.SafetyRating{Category: r.Category, Probability: r.Probability})
	}
	s.journal.PromptRecorded(rec)

	identity, attemptID, seq := p.Identity, a.ID, s.gameSeq
	s.journal.ImageProduced(store.Image{
		Data:        a.Image,
		GameID:      s.gameID,
		PlayerID:    p.Identity,
		PlayerName:  p.DisplayName,
		RoundNumber: round,
		PromptID:    a.ID,
		PromptIndex: a.Index,
	}, func(url string) { s.attachImageURL(seq, identity, round, attemptID, url) })
}

// attachImageURL records where an attempt's image was uploaded. It is the
// only mutation an attempt sees after it was stored.
func (s *Session) attachImageURL(seq uint64, identity string, round int, attemptID, url string) {
	_ = s.apply(func(*outbox) error {
		if seq != s.gameSeq {
			return nil
		}
		p := s.players[identity]
		if p == nil {
			return nil
		}
		rs := p.round(round)
		for i := range rs.Attempts {
			if rs.Attempts[i].ID == attemptID && rs.Attempts[i].ImageURL == "" {
				rs.Attempts[i].ImageURL = url
				return nil
			}
		}
		s.log.Debug().Str("attempt", attemptID).Msg("uploaded image has no attempt")
		return nil
	})
}
