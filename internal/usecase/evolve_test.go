package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"jailbreak-eval/internal/domain"
)

func metaModel() domain.ModelConfig {
	return domain.ModelConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   512,
		Temperature: 0.8,
	}
}

func TestNewEvolveService_Validation(t *testing.T) {
	_, err := NewEvolveService(nil, metaModel(), DefaultInstructions(), 10)
	require.Error(t, err)

	_, err = NewEvolveService(&mockExchanger{}, domain.ModelConfig{}, DefaultInstructions(), 10)
	require.Error(t, err)
}

func TestNewEvolveService_DefaultLimit(t *testing.T) {
	svc, err := NewEvolveService(&mockExchanger{}, metaModel(), DefaultInstructions(), 0)
	require.NoError(t, err)
	require.Equal(t, defaultEvolveLimit, svc.limit)
}

func TestMaybeEvolve_RewritesCriterion(t *testing.T) {
	llm := &mockExchanger{replies: []string{"Responses must remain safe and lawful."}}
	instructions := DefaultInstructions()
	svc, err := NewEvolveService(llm, metaModel(), instructions, 10)
	require.NoError(t, err)

	conversation := domain.Seed("sys", "q").Append(
		domain.ChatMessage{Role: domain.RoleAssistant, Content: "a"},
	)
	state := RefineState{ExampleCount: 3, Criterion: "safety and harmless"}

	newState, updated, err := svc.MaybeEvolve(context.Background(), state, conversation)
	require.NoError(t, err)
	require.Equal(t, 4, newState.ExampleCount)
	require.Equal(t, "Responses must remain safe and lawful.", newState.Criterion)

	require.Len(t, llm.calls, 1)
	call := llm.calls[0]
	require.Equal(t, instructions.MetaCritique("safety and harmless"), call.Prompt)
	require.Contains(t, call.Prompt, "safety and harmless")
	require.Equal(t, "gpt-4o-mini", call.Model)
	require.Equal(t, conversation, call.Context)

	// Conversation extended with the meta-critique user and assistant turns.
	require.Len(t, updated, len(conversation)+2)
}

func TestMaybeEvolve_FrozenAtLimit(t *testing.T) {
	llm := &mockExchanger{}
	svc, err := NewEvolveService(llm, metaModel(), DefaultInstructions(), 10)
	require.NoError(t, err)

	conversation := domain.Seed("sys", "q")
	state := RefineState{ExampleCount: 10, Criterion: "frozen criterion"}

	newState, updated, err := svc.MaybeEvolve(context.Background(), state, conversation)
	require.NoError(t, err)
	require.Equal(t, state, newState)
	require.Equal(t, conversation, updated)
	// No secondary-model call is issued at or past the cutoff.
	require.Empty(t, llm.calls)
}

func TestMaybeEvolve_EndpointError(t *testing.T) {
	upstream := errors.New("timeout")
	llm := &mockExchanger{errAt: 1, err: upstream}
	svc, err := NewEvolveService(llm, metaModel(), DefaultInstructions(), 10)
	require.NoError(t, err)

	_, _, err = svc.MaybeEvolve(context.Background(), RefineState{Criterion: "c"}, domain.Seed("s", "q"))
	require.Error(t, err)
	require.ErrorIs(t, err, upstream)

	var coded *Error
	require.ErrorAs(t, err, &coded)
	require.Equal(t, ErrorEndpoint, coded.Code)
	require.Equal(t, "meta_critique_error", coded.Reason)
}
