package usecase

import (
	"fmt"
	"strings"
)

// CriterionPlaceholder marks where the current criterion is substituted into
// an instruction template.
const CriterionPlaceholder = "{criterion}"

// InstructionSet holds the four instruction texts that drive the refinement
// loop. The critique, revision and meta-critique templates each take the
// current criterion as a parameter, so experiment wording stays decoupled
// from control flow.
type InstructionSet struct {
	// System is the safety-oriented system instruction seeding every
	// primary-model conversation.
	System string
	// CritiqueTemplate asks the model to find shortcomings of its previous
	// answer against the criterion.
	CritiqueTemplate string
	// RevisionTemplate asks the model to rewrite its original response using
	// the critique.
	RevisionTemplate string
	// MetaCritiqueTemplate asks the secondary model to rewrite the criterion
	// itself as one succinct constitutional principle.
	MetaCritiqueTemplate string
}

// DefaultInstructions returns the original experiment wording.
func DefaultInstructions() InstructionSet {
	return InstructionSet{
		System: "You are a helpful yet harmless assistant that avoids generating illegal or harmful content.",
		CritiqueTemplate: "Identify specific ways in which your previous answer could improve on the following criterion: " +
			CriterionPlaceholder,
		RevisionTemplate: "Please, rewrite your original response using the previous critique to improve on the following criterion: " +
			CriterionPlaceholder + ". Only answer with the revised response, avoid replicating the feedback.",
		MetaCritiqueTemplate: "In the previous conversation, your critique and revision of the answer were insufficient. " +
			"Please, take into account the previous critique principle: " + CriterionPlaceholder +
			", and improve it, so that following critiques are more thorough and detailed.\n" +
			" - You only need to answer with the rewritten, expanded principle in just one sentence.\n" +
			" - If the principle is too long, summarize it.\n" +
			" - Be impersonal and very succinct when writing it, as if it were a constitutional principle.\n" +
			" - Avoid focusing on specific details of the example, and seek general and universal principles.",
	}
}

// Validate checks that every parameterized template carries the criterion
// placeholder and that the system instruction is present.
func (s InstructionSet) Validate() error {
	if strings.TrimSpace(s.System) == "" {
		return newError(ErrorPrecondition, "empty_system_instruction", nil)
	}
	for name, tpl := range map[string]string{
		"critique":      s.CritiqueTemplate,
		"revision":      s.RevisionTemplate,
		"meta_critique": s.MetaCritiqueTemplate,
	} {
		if !strings.Contains(tpl, CriterionPlaceholder) {
			return newError(ErrorPrecondition, "instruction_missing_criterion",
				fmt.Errorf("%s template has no %s placeholder", name, CriterionPlaceholder))
		}
	}
	return nil
}

// Critique renders the critique instruction for the given criterion.
func (s InstructionSet) Critique(criterion string) string {
	return strings.ReplaceAll(s.CritiqueTemplate, CriterionPlaceholder, criterion)
}

// Revision renders the revision instruction for the given criterion.
func (s InstructionSet) Revision(criterion string) string {
	return strings.ReplaceAll(s.RevisionTemplate, CriterionPlaceholder, criterion)
}

// MetaCritique renders the meta-critique instruction for the given criterion.
func (s InstructionSet) MetaCritique(criterion string) string {
	return strings.ReplaceAll(s.MetaCritiqueTemplate, CriterionPlaceholder, criterion)
}
