package ai

import "strings"

// DefaultInstruction is used when a page has no system prompt.
const DefaultInstruction = "You are a helpful assistant."

const knowledgeBaseHeader = "\n\n--- KNOWLEDGE BASE ---\n" +
	"Use the following information to answer questions. Only use this information when relevant:\n\n"

// BuildInstruction joins the persona and the knowledge base into one system instruction.
func BuildInstruction(systemPrompt, kb string) string {
	instruction := systemPrompt
	if instruction == "" {
		instruction = DefaultInstruction
	}
	if strings.TrimSpace(kb) != "" {
		instruction += knowledgeBaseHeader + kb
	}
	return instruction
}

// modelRole maps stored roles onto the two roles the API accepts.
func modelRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func buildContents(history []Turn, message string) []content {
	contents := make([]content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, content{
			Role:  modelRole(turn.Role),
			Parts: []part{{Text: turn.Content}},
		})
	}
	return append(contents, content{
		Role:  "user",
		Parts: []part{{Text: message}},
	})
}
