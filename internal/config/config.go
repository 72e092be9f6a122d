package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kiliankoe/promptcraft/internal/game"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8000"`
	Env       string `env:"ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	AdminCode string `env:"ADMIN_CODE"`

	ImageProvider     string        `env:"IMAGE_PROVIDER" envDefault:"gemini"`
	GeminiKey         string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiBaseURL     string        `env:"GEMINI_BASE_URL"`
	OpenAIKey         string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	OpenAIImageModel  string        `env:"OPENAI_IMAGE_MODEL" envDefault:"dall-e-2"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"90s"`

	DatabaseURL  string   `env:"DATABASE_URL"`
	MediaDir     string   `env:"MEDIA_DIR"`
	MediaBaseURL string   `env:"MEDIA_BASE_URL" envDefault:"/media"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:","`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"rounds_export.txt"`

	RoundDuration     time.Duration `env:"ROUND_DURATION" envDefault:"5m"`
	PromptGrace       time.Duration `env:"PROMPT_GRACE" envDefault:"5s"`
	TransitionMin     time.Duration `env:"TRANSITION_MIN" envDefault:"5s"`
	TransitionMax     time.Duration `env:"TRANSITION_MAX" envDefault:"10s"`
	SelectionDuration time.Duration `env:"SELECTION_DURATION" envDefault:"30s"`
	VoteQuorum        float64       `env:"VOTE_QUORUM" envDefault:"0.66"`
	SmallImageKB      float64       `env:"SMALL_IMAGE_KB" envDefault:"50"`
}

// FromEnv loads an optional .env file and parses the process environment.
func FromEnv() (Config, error) {
	// a missing .env is the normal case in production
	_ = godotenv.Load()
	return parse()
}

func parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("environment variables are invalid: %w", err)
	}
	c.AdminCode = strings.TrimSpace(c.AdminCode)
	c.ImageProvider = strings.ToLower(strings.TrimSpace(c.ImageProvider))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.ImageProvider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("IMAGE_PROVIDER %q is not supported", c.ImageProvider))
	}
	for name, d := range map[string]time.Duration{
		"ROUND_DURATION":     c.RoundDuration,
		"TRANSITION_MIN":     c.TransitionMin,
		"TRANSITION_MAX":     c.TransitionMax,
		"SELECTION_DURATION": c.SelectionDuration,
		"GENERATION_TIMEOUT": c.GenerationTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.PromptGrace < 0 {
		errs = append(errs, errors.New("PROMPT_GRACE must not be negative"))
	}
	if c.TransitionMax < c.TransitionMin {
		errs = append(errs, errors.New("TRANSITION_MAX must not be shorter than TRANSITION_MIN"))
	}
	if c.VoteQuorum <= 0 || c.VoteQuorum > 1 {
		errs = append(errs, errors.New("VOTE_QUORUM must be in (0, 1]"))
	}
	if c.SmallImageKB < 0 {
		errs = append(errs, errors.New("SMALL_IMAGE_KB must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) GameSettings() game.Settings {
	s := game.DefaultSettings()
	s.AdminCode = c.AdminCode
	s.RoundDuration = c.RoundDuration
	s.PromptGrace = c.PromptGrace
	s.TransitionMin = c.TransitionMin
	s.TransitionMax = c.TransitionMax
	s.SelectionDuration = c.SelectionDuration
	s.GenerationTimeout = c.GenerationTimeout
	s.VoteQuorum = c.VoteQuorum
	s.SmallImageKB = c.SmallImageKB
	return s
}

func (c Config) PersistenceEnabled() bool { return c.DatabaseURL != "" }
func (c Config) UploadsEnabled() bool     { return c.MediaDir != "" }
