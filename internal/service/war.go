package service

import (
	"context"
	"fmt"

	"nodewar-tracker/internal/constants"
	"nodewar-tracker/internal/domain"
	"nodewar-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// WarService wraps the pipeline with persistence. A processing result is
// never lost to a failed save: the ProcessedLog comes back to the caller
// alongside the persistence error so the save can be retried on its own.
type WarService struct {
	pipeline *Pipeline
	repo     *repository.WarLogRepository
	logger   zerolog.Logger
}

func NewWarService(pipeline *Pipeline, repo *repository.WarLogRepository, logger zerolog.Logger) *WarService {
	return &WarService{pipeline: pipeline, repo: repo, logger: logger}
}

// ProcessAndStore runs the pipeline and persists the result.
func (s *WarService) ProcessAndStore(ctx context.Context, logText string, meta domain.LogMetadata) (*domain.ProcessedLog, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProcessTimeout)
	defer cancel()

	log, err := s.pipeline.Process(ctx, logText, meta)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Insert(ctx, log)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to store war log")
		return log, fmt.Errorf("failed to store war log: %w", err)
	}
	return stored, nil
}

func (s *WarService) Get(ctx context.Context, id string) (*domain.ProcessedLog, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.repo.Get(ctx, id)
}

func (s *WarService) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.repo.Delete(ctx, id)
}

// CorrectTimeline applies a post-hoc occupancy correction to a stored log.
func (s *WarService) CorrectTimeline(ctx context.Context, id string, totalNodeSeconds int, occupancyByGuild map[string]int) (*domain.ProcessedLog, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	s.logger.Info().Str("id", id).Msg("applying timeline correction")
	return s.repo.UpdateTimeline(ctx, id, totalNodeSeconds, occupancyByGuild)
}
