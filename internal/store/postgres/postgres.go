package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kiliankoe/promptcraft/internal/store"
)

const initTimeout = 15 * time.Second

//go:embed migrations/*.sql
var migrations embed.FS

type Recorder struct {
	pool *pgxpool.Pool
}

var _ store.Recorder = (*Recorder)(nil)

// Open connects, pings and migrates the database at url.
func Open(ctx context.Context, url string) (*Recorder, error) {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Recorder{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (r *Recorder) Close() { r.pool.Close() }

func (r *Recorder) CreateGame(ctx context.Context, g store.Game) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO games (game_id, started_at, total_players)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (game_id) DO UPDATE SET total_players = EXCLUDED.total_players`,
		g.ID, g.StartedAt, g.TotalPlayers)
	return err
}

func (r *Recorder) EndGame(ctx context.Context, gameID string, roundsCompleted int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE games SET ended_at = $2, rounds_completed = $3 WHERE game_id = $1`,
		gameID, at, roundsCompleted)
	return err
}

func (r *Recorder) CreateRound(ctx context.Context, rd store.Round) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rounds (round_id, game_id, round_number, started_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (round_id) DO NOTHING`,
		rd.ID, rd.GameID, rd.RoundNumber, rd.StartedAt)
	return err
}

func (r *Recorder) EndRound(ctx context.Context, roundID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE rounds SET ended_at = $2 WHERE round_id = $1 AND ended_at IS NULL`,
		roundID, at)
	return err
}

func (r *Recorder) UpsertPlayer(ctx context.Context, p store.Player) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO players (player_id, game_id, player_name, team, character_name)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''))
		 ON CONFLICT (player_id) DO UPDATE SET
		   game_id = EXCLUDED.game_id,
		   player_name = EXCLUDED.player_name,
		   team = EXCLUDED.team,
		   character_name = EXCLUDED.character_name,
		   updated_at = now()`,
		p.ID, p.GameID, p.Name, p.Team, p.Character)
	return err
}

func (r *Recorder) SavePrompt(ctx context.Context, p store.Prompt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO prompts (prompt_id, game_id, round_id, player_id, prompt_index, prompt_text,
		   ai_response, submitted_at, error_type, error_message, finish_reason, file_size_kb, safety_ratings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13)
		 ON CONFLICT (prompt_id) DO NOTHING`,
		p.ID, p.GameID, p.RoundID, p.PlayerID, p.PromptIndex, p.Text,
		p.AIResponse, p.SubmittedAt, p.ErrorType, p.ErrorMessage, p.FinishReason, p.FileSizeKB, p.SafetyRatings)
	return err
}

func (r *Recorder) SetPromptImageURL(ctx context.Context, promptID, url string) error {
	_, err := r.pool.Exec(ctx, `UPDATE prompts SET image_url = $2 WHERE prompt_id = $1`, promptID, url)
	return err
}

func (r *Recorder) SaveSelection(ctx context.Context, s store.Selection) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO image_selections (round_id, player_id, game_id, prompt_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (round_id, player_id) DO UPDATE SET prompt_id = EXCLUDED.prompt_id, selected_at = now()`,
		s.RoundID, s.PlayerID, s.GameID, s.PromptID)
	return err
}

func (r *Recorder) SaveVote(ctx context.Context, v store.Vote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO votes (round_id, voter_id, game_id, voted_for_player_id, voted_for_prompt_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		 ON CONFLICT (round_id, voter_id) DO NOTHING`,
		v.RoundID, v.VoterID, v.GameID, v.VotedForPlayerID, v.VotedForPromptID)
	return err
}
