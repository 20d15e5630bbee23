package usecase

import (
	"context"
	"errors"

	"jailbreak-eval/internal/domain"
)

// defaultEvolveLimit is the number of early examples allowed to rewrite the
// criterion before it freezes for the rest of the run.
const defaultEvolveLimit = 10

// RefineState is the run state threaded through each iteration: how many
// examples have evolved the criterion so far, and the criterion currently in
// force. The driver owns it; the controller returns an updated copy.
type RefineState struct {
	ExampleCount int
	Criterion    string
}

// EvolveService rewrites the shared criterion via the secondary model for a
// bounded number of early examples.
type EvolveService struct {
	llm          Exchanger
	model        domain.ModelConfig
	instructions InstructionSet
	limit        int
}

func NewEvolveService(llm Exchanger, model domain.ModelConfig, instructions InstructionSet, limit int) (*EvolveService, error) {
	if llm == nil {
		return nil, errors.New("usecase: exchanger must not be nil")
	}
	if model.Model == "" {
		return nil, errors.New("usecase: secondary model id must not be empty")
	}
	if err := instructions.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEvolveLimit
	}
	return &EvolveService{llm: llm, model: model, instructions: instructions, limit: limit}, nil
}

// MaybeEvolve asks the secondary model to rewrite the criterion based on the
// example's refinement conversation. The cutoff is a strict count of
// invocations: once the limit has been reached the inputs come back
// unchanged and no endpoint call is made.
func (s *EvolveService) MaybeEvolve(ctx context.Context, state RefineState, conversation domain.Conversation) (RefineState, domain.Conversation, error) {
	if state.ExampleCount >= s.limit {
		return state, conversation, nil
	}
	state.ExampleCount++

	criterion, updated, err := s.llm.Exchange(ctx, domain.ExchangeRequest{
		Prompt:      s.instructions.MetaCritique(state.Criterion),
		Context:     conversation,
		Model:       s.model.Model,
		MaxTokens:   s.model.MaxTokens,
		Temperature: s.model.Temperature,
	})
	if err != nil {
		return state, conversation, newError(ErrorEndpoint, "meta_critique_error", err)
	}
	state.Criterion = criterion
	return state, updated, nil
}
