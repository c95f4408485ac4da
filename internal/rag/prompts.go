package rag

// System instructions for each answer route.
const (
	knowledgeSystem = "You are a safe medical assistant. Answer cautiously using general medical knowledge. Recommend clinical verification."
	weakSystem      = "You are a cautious medical assistant. Retrieved documents are weak. Use content only if clearly relevant. Otherwise answer using safe medical knowledge."
	groundedSystem  = "You are a medical assistant. Use ONLY the context below. Do NOT hallucinate. If answer is unclear, say so."
)

// Follow-up question instructions.
const (
	suggestWithContext = "Generate exactly 3 smart, specific follow-up short questions for this medical query. Make them relevant to the context and question. Number them 1., 2., 3."
	suggestNoContext   = "Generate exactly 3 smart short follow-up questions based on this medical question. Number them 1., 2., 3."
)

// Fixed answer texts for model failures.
const (
	AnswerFailed     = "Answer generation failed."
	AnswerUnanswered = "Unable to answer."
)

func weakPrompt(context, question string) string {
	return "Documents:\n" + context + "\n\nQuestion:\n" + question
}

func groundedPrompt(context, question string) string {
	return "Context:\n" + context + "\n\nQuestion:\n" + question
}

func suggestPrompt(context, question string) string {
	return "Context (from medical documents):\n" + context + "\n\nUser Question: " + question
}
