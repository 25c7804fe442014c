package solver

import (
	"fmt"
	"strings"

	"github.com/nkarpov/solvd/internal/domain"
)

// Delimiters of the structured solution format. The solving prompt mandates
// them and ParseSolution consumes them; they are an internal protocol and
// must never reach user-visible text.
const (
	explanationStart = "===STEP_BY_STEP_EXPLANATION_START==="
	explanationEnd   = "===STEP_BY_STEP_EXPLANATION_END==="
	answerStart      = "===FINAL_ANSWER_START==="
	answerEnd        = "===FINAL_ANSWER_END==="
)

const extractionTemplate = `You are a transcription assistant. Look at the attached image of a math problem.
Do NOT solve the problem. Transcribe it.

Produce:
1. A short title line for the problem.
2. PROBLEM: the problem statement, transcribed verbatim.
3. GIVEN: each given value or condition, one per line.
4. VISUAL: a verbatim description of any figure, graph or diagram.
5. QUESTIONS: every sub-question, numbered.

Transcribe exactly what you see. Do not add steps, hints or answers.`

const solvingTemplate = `You are an expert math tutor. Solve the following problem step by step.

%s

Show your reasoning one step at a time, then state the final answer.
Format your reply EXACTLY like this:

%s
(your numbered steps here)
%s
%s
(the final answer only)
%s`

const roleClearingMessage = `Disregard your previous transcription instructions. ` +
	`You are no longer a transcription assistant. From now on you are an expert ` +
	`math tutor who solves problems step by step. Reply "Understood" and wait ` +
	`for the problem.`

// ExtractionPrompt returns the fixed instruction for the image transcription
// phase.
func ExtractionPrompt() string {
	return extractionTemplate
}

// SolvingPrompt embeds the problem text into the solving instruction,
// mandating the delimiter format ParseSolution expects.
func SolvingPrompt(problemText string) string {
	return fmt.Sprintf(solvingTemplate, strings.TrimSpace(problemText),
		explanationStart, explanationEnd, answerStart, answerEnd)
}

// RoleClearingPrompt returns the turn that repurposes an extraction session
// into a solving session. Its reply is discarded.
func RoleClearingPrompt() string {
	return roleClearingMessage
}

// FollowUpPrompt builds the single-turn prompt for a follow-up question,
// embedding the original problem, the prior solution and the labeled
// conversation transcript.
func FollowUpPrompt(ectx domain.EssentialContext, history []*domain.ChatMessage, question string) string {
	var b strings.Builder
	b.WriteString("You are an expert math tutor continuing a conversation about a problem you already solved.\n\n")
	b.WriteString("PROBLEM:\n")
	b.WriteString(strings.TrimSpace(ectx.ExtractedText))
	b.WriteString("\n\nYOUR ANSWER:\n")
	b.WriteString(strings.TrimSpace(ectx.Answer))
	if ectx.Explanation != "" {
		b.WriteString("\n\nYOUR EXPLANATION:\n")
		b.WriteString(strings.TrimSpace(ectx.Explanation))
	}
	if len(history) > 0 {
		b.WriteString("\n\nCONVERSATION SO FAR:\n")
		for _, m := range history {
			b.WriteString(m.Author())
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(m.Text))
			b.WriteString("\n")
		}
	}
	b.WriteString("\nStudent: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer the student's question directly and concisely. Plain text, no markers.")
	return b.String()
}

// RenderSolution wraps an explanation and answer in the exact delimiter
// format the solving prompt mandates. Inverse of the strict ParseSolution
// tier.
func RenderSolution(explanation, answer string) string {
	return explanationStart + "\n" + explanation + "\n" + explanationEnd + "\n" +
		answerStart + "\n" + answer + "\n" + answerEnd
}
