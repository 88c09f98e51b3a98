package search

import (
	"fmt"
	"strings"
)

const promptTemplate = `Answer the question ONLY from the context below.
If the answer is not present, say "I don't know".
Be concise (1-2 sentences).

Context:
%s

Question: %s

Answer:`

// BuildPrompt formats contexts as numbered [Source i] blocks under the answering instructions.
func BuildPrompt(query string, contexts []string) string {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("[Source %d]\n%s", i+1, c)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n---\n\n"), query)
}

// ExtractiveAnswer joins the first n contexts with single spaces.
func ExtractiveAnswer(contexts []string, n int) string {
	if n > 0 && len(contexts) > n {
		contexts = contexts[:n]
	}
	return strings.Join(contexts, " ")
}
