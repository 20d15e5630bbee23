package usecase

import (
	"context"
	"errors"

	"jailbreak-eval/internal/domain"
)

// Exchanger is the single request/response exchange with a model endpoint
// consumed by the refinement loop.
type Exchanger interface {
	Exchange(ctx context.Context, req domain.ExchangeRequest) (string, domain.Conversation, error)
}

// Refinement is one prompt's pass through the critique-revise loop.
type Refinement struct {
	Response        string
	Critique        string
	ResponseRevised string
	// Context is the revision branch: initial exchange, critique user and
	// assistant turns, revision user and assistant turns.
	Context domain.Conversation
}

// RefineService drives generation, critique and revision against the primary
// model for one (prompt, criterion) pair at a time.
type RefineService struct {
	llm          Exchanger
	model        domain.ModelConfig
	instructions InstructionSet
}

func NewRefineService(llm Exchanger, model domain.ModelConfig, instructions InstructionSet) (*RefineService, error) {
	if llm == nil {
		return nil, errors.New("usecase: exchanger must not be nil")
	}
	if model.Model == "" {
		return nil, errors.New("usecase: primary model id must not be empty")
	}
	if err := instructions.Validate(); err != nil {
		return nil, err
	}
	return &RefineService{llm: llm, model: model, instructions: instructions}, nil
}

// Refine produces the response, critique and revision for one formatted
// prompt under the given criterion. Any exchange failure aborts the example
// and propagates unchanged; nothing is retried here.
func (s *RefineService) Refine(ctx context.Context, prompt, criterion string) (Refinement, error) {
	response, convo, err := s.llm.Exchange(ctx, domain.ExchangeRequest{
		Prompt:      prompt,
		System:      s.instructions.System,
		Model:       s.model.Model,
		MaxTokens:   s.model.MaxTokens,
		Temperature: s.model.Temperature,
	})
	if err != nil {
		return Refinement{}, newError(ErrorEndpoint, "initial_response_error", err)
	}

	critiquePrompt := s.instructions.Critique(criterion)
	critique, _, err := s.llm.Exchange(ctx, domain.ExchangeRequest{
		Prompt:      critiquePrompt,
		Context:     convo,
		Model:       s.model.Model,
		MaxTokens:   s.model.MaxTokens,
		Temperature: s.model.Temperature,
	})
	if err != nil {
		return Refinement{}, newError(ErrorEndpoint, "critique_error", err)
	}

	// The critique call's returned conversation diverges from the branch the
	// revision needs, so the revision branch is assembled by hand from the
	// initial exchange plus the critique turns.
	revisedContext := convo.Append(
		domain.ChatMessage{Role: domain.RoleUser, Content: critiquePrompt},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: critique},
	)

	responseRevised, revisedContext, err := s.llm.Exchange(ctx, domain.ExchangeRequest{
		Prompt:      s.instructions.Revision(criterion),
		Context:     revisedContext,
		System:      s.instructions.System,
		Model:       s.model.Model,
		MaxTokens:   s.model.MaxTokens,
		Temperature: s.model.Temperature,
	})
	if err != nil {
		return Refinement{}, newError(ErrorEndpoint, "revision_error", err)
	}

	return Refinement{
		Response:        response,
		Critique:        critique,
		ResponseRevised: responseRevised,
		Context:         revisedContext,
	}, nil
}
