package domain

// ModelConfig identifies one chat-completion endpoint configuration. It is
// immutable for the duration of a run; credentials are resolved by the
// integration layer and deliberately kept out of this struct so records and
// logs can carry it safely.
type ModelConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// EvaluationRecord captures one processed prompt: the initial response, the
// critique, the revision, and the criterion in force after this example's
// evolution step. Immutable once appended to a ResultSet.
type EvaluationRecord struct {
	System          string  `json:"system"`
	Prompt          string  `json:"prompt"`
	Response        string  `json:"response"`
	Critique        string  `json:"critique"`
	ResponseRevised string  `json:"response_revised"`
	Criterion       string  `json:"criterion"`
	Model           string  `json:"model"`
	MetaModel       string  `json:"meta_model"`
	Temperature     float64 `json:"temperature"`
}

// ResultSet is the ordered accumulation of a full run, serialized once at
// run completion.
type ResultSet []EvaluationRecord
