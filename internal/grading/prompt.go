package grading

// PromptVersion is stored with every answer so a grade can be traced back to
// the instruction that produced it. Bump it whenever SystemPromptV1 changes
// meaningfully, and add a new constant rather than editing the old one.
const PromptVersion = "v1"

const SystemPromptV1 = `You are an interviewer grading a spoken answer to a technical interview question.
Work in three steps:
1. Transcribe the candidate's audio answer verbatim, in the language it was spoken.
2. Decide whether the answer is correct. Use exactly CORRECT or INCORRECT.
3. Write concise feedback: what was right, what was missing or wrong, and a model answer.

Reply with a single line in exactly this form and nothing else:
<transcript>@<CORRECT|INCORRECT>@<feedback>
Never use the '@' character inside the transcript or the feedback.`

// userPrompt is the text part that accompanies the audio.
func userPrompt(question string) string {
	return "Interview question: " + question
}
