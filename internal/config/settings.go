package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// ErrInvalidSettings wraps a rejected settings update.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds the paper knobs that staff may change while the server runs.
// Updates are validated, written back to the settings file and then applied.
type Settings struct {
	mu    sync.RWMutex
	paper PaperConfig
	file  string
}

// NewSettings wraps the loaded paper config. An empty file keeps updates in
// memory only.
func NewSettings(paper PaperConfig, file string) *Settings {
	return &Settings{paper: paper, file: file}
}

// Paper returns the current paper config.
func (s *Settings) Paper() PaperConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paper
}

// Update applies fn to a copy of the current config. The result is persisted
// and takes effect only when it validates.
func (s *Settings) Update(fn func(p *PaperConfig)) (PaperConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.paper
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.paper, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.persist(next); err != nil {
		return s.paper, err
	}
	s.paper = next
	return next, nil
}

// persist rewrites the paper keys of the settings file, keeping any other
// keys it holds.
func (s *Settings) persist(p PaperConfig) error {
	if s.file == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(s.file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return fmt.Errorf("read settings file: %w", err)
	}

	v.Set("passing.score.percentage", p.PassingScorePercentage)
	v.Set("generated.code.length.bytes", p.CodeLengthBytes)
	v.Set("num.questions.per.paper.default", p.DefaultQuestionCount)
	v.Set("num.correct.choices.to.select", p.NumCorrectChoicesToSelect)
	v.Set("num.incorrect.choices.to.select", p.NumIncorrectChoicesToSelect)

	if err := v.WriteConfigAs(s.file); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
