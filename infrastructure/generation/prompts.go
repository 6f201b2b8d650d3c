package generation

import (
	"fmt"
	"strings"
)

const answerSystemPrompt = `You help a user explore a subject on a visual canvas of questions.
Answer the question concisely in a few paragraphs, then propose up to four
short follow-up questions that would deepen the user's understanding.
Reply with a single JSON object: {"answer": string, "followUps": [string]}.`

const topicSystemPrompt = `You explain a term the user highlighted while exploring a subject.
Keep the explanation short and grounded in the conversation so far.
Reply with a single JSON object: {"explanation": string}.`

const synthesisSystemPrompt = `You combine several threads of a question-and-answer exploration into
one coherent document with a short title.
Reply with a single JSON object: {"title": string, "content": string}.`

func queryPrompt(text string) string {
	return "Question: " + text
}

func followUpPrompt(text string, trail []string) string {
	var b strings.Builder
	writeTrail(&b, trail)
	b.WriteString("Question: ")
	b.WriteString(text)
	return b.String()
}

func topicPrompt(term string, trail []string) string {
	var b strings.Builder
	writeTrail(&b, trail)
	fmt.Fprintf(&b, "Explain the term %q in this context.", term)
	return b.String()
}

func synthesisPrompt(contexts []string, customPrompt string) string {
	var b strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&b, "Thread %d:\n%s\n\n", i+1, c)
	}
	if customPrompt != "" {
		b.WriteString("Instructions: ")
		b.WriteString(customPrompt)
	} else {
		b.WriteString("Summarize what these threads establish together.")
	}
	return b.String()
}

// writeTrail renders the root-first context trail ahead of the request
func writeTrail(b *strings.Builder, trail []string) {
	if len(trail) == 0 {
		return
	}
	b.WriteString("Conversation so far:\n")
	for _, entry := range trail {
		b.WriteString(entry)
		b.WriteString("\n\n")
	}
}
