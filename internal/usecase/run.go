package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"jailbreak-eval/internal/dataset"
	"jailbreak-eval/internal/domain"
)

// Refiner runs the critique-revise loop for one formatted prompt.
type Refiner interface {
	Refine(ctx context.Context, prompt, criterion string) (Refinement, error)
}

// Evolver applies the per-example criterion evolution step.
type Evolver interface {
	MaybeEvolve(ctx context.Context, state RefineState, conversation domain.Conversation) (RefineState, domain.Conversation, error)
}

// RecordSink receives each completed record as it is produced, so finished
// work survives a late failure. The final result document is written
// separately, once, by the caller.
type RecordSink interface {
	PutRecord(ctx context.Context, runID string, seq int, rec domain.EvaluationRecord) error
}

// RunService orchestrates the full evaluation run: it pairs prompts with
// jailbreak templates, drives the refine and evolve steps strictly in
// sequence, and accumulates the result set.
type RunService struct {
	refiner       Refiner
	evolver       Evolver
	sink          RecordSink // optional
	primary       domain.ModelConfig
	meta          domain.ModelConfig
	instructions  InstructionSet
	seedCriterion string
	runID         string
	log           *slog.Logger
}

// RunOption customizes a RunService.
type RunOption func(*RunService)

// WithRecordSink enables incremental per-record persistence.
func WithRecordSink(sink RecordSink) RunOption {
	return func(s *RunService) {
		s.sink = sink
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) RunOption {
	return func(s *RunService) {
		if log != nil {
			s.log = log
		}
	}
}

func NewRunService(refiner Refiner, evolver Evolver, primary, meta domain.ModelConfig, instructions InstructionSet, seedCriterion string, opts ...RunOption) (*RunService, error) {
	if refiner == nil {
		return nil, errors.New("usecase: refiner must not be nil")
	}
	if evolver == nil {
		return nil, errors.New("usecase: evolver must not be nil")
	}
	if seedCriterion == "" {
		return nil, errors.New("usecase: seed criterion must not be empty")
	}
	if err := instructions.Validate(); err != nil {
		return nil, err
	}
	s := &RunService{
		refiner:       refiner,
		evolver:       evolver,
		primary:       primary,
		meta:          meta,
		instructions:  instructions,
		seedCriterion: seedCriterion,
		runID:         uuid.NewString(),
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunID identifies this run in the record sink.
func (s *RunService) RunID() string {
	return s.runID
}

// Run processes every (prompt, template) pair in order and returns the full
// result set. Processing is strictly sequential: each example's criterion
// update is visible to the next example. Any failure aborts the run; no
// partial result set is returned.
func (s *RunService) Run(ctx context.Context, prompts, templates []string) (domain.ResultSet, error) {
	if len(prompts) == 0 {
		return nil, newError(ErrorPrecondition, "empty_prompt_set", nil)
	}
	if len(templates) < len(prompts) {
		return nil, newError(ErrorPrecondition, "insufficient_templates", nil)
	}

	state := RefineState{Criterion: s.seedCriterion}
	results := make(domain.ResultSet, 0, len(prompts))

	for i, prompt := range prompts {
		formatted := dataset.Format(templates[i], prompt)

		refinement, err := s.refiner.Refine(ctx, formatted, state.Criterion)
		if err != nil {
			return nil, err
		}

		state, _, err = s.evolver.MaybeEvolve(ctx, state, refinement.Context)
		if err != nil {
			return nil, err
		}

		// The record carries the post-update criterion, matching the
		// original loop ordering.
		rec := domain.EvaluationRecord{
			System:          s.instructions.System,
			Prompt:          formatted,
			Response:        refinement.Response,
			Critique:        refinement.Critique,
			ResponseRevised: refinement.ResponseRevised,
			Criterion:       state.Criterion,
			Model:           s.primary.Model,
			MetaModel:       s.meta.Model,
			Temperature:     s.primary.Temperature,
		}
		results = append(results, rec)

		if s.sink != nil {
			if err := s.sink.PutRecord(ctx, s.runID, i, rec); err != nil {
				return nil, newError(ErrorInternal, "record_sink_error", err)
			}
		}

		s.log.Info("example processed",
			"index", i,
			"examples_evolved", state.ExampleCount,
		)
	}

	return results, nil
}
