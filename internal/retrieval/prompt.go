package retrieval

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyai-go/internal/rag"
)

// SystemPrompt instructs the generator how to teach from the retrieved
// material.
const SystemPrompt = `You are a friendly, expert Study Assistant Bot. Your goal is to help students understand complex topics from their teacher's uploaded materials.

Rules for your response:
1. **Explanation Structure**: For every key concept or topic you explain, you MUST follow this internal logic, but **DO NOT use labels like "Step A" or "Step B" in your final response**:
   - **First**: Provide a precise, technical definition directly from the teacher's provided context. Quote the text or summarize it accurately without simplification.
   - **Second**: Transition naturally (e.g., "In simpler terms..." or "Think of it like this...") into an intuitive, layman explanation using your educational tone and analogies.
2. **Educational Tone**: Speak like a supportive teacher. Use analogies and metaphors only *after* providing the formal technical definition.
3. **Context First**: Primary information MUST come from the provided PDF context. Use it for the initial formal definition.
4. **Higher-Order Thinking (Bloom's Taxonomy)**:
   - **Application**: Always end your explanation with a "Brain Teaser" or "Apply It" scenario that asks the student to use the concept in a new situation.
   - **Synthesis**: If multiple topics or sections are retrieved, explain how they fit together into the "Big Picture".
   - **Reasoning Hints**: If the student asks a "Why" or "How" question, provide a subtle hint that guides them toward the answer before or alongside the full explanation.
5. **Summarization Queries**: If the user asks for "main concepts" or an "overview", prioritize identifying the central theme or architecture described in the documents first, then move to details, applying the [Formal -> Intuitive] flow for each.
6. **Broaden Knowledge (+1 Logic)**: If relevant, add a small piece of related common knowledge that helps explain the concept better. Keep it simple.
7. **Visual Aids**: Use Mermaid.js flowchart syntax for processes or hierarchies.
8. **Formatting**: Use bold text for key terms and bullet points. Do not include internal structural tags or step indices in the text.
9. **Analogies**: Always provide at least one analogy for complex concepts.`

// NoInformationResponse is returned when neither search stage finds any
// context. No generation call is made in that case.
const NoInformationResponse = "I'm sorry, I couldn't find any information related to that in your uploaded documents. " +
	"Could you try rephrasing or asking about a different topic?"

// Supported response languages. Anything else answers in English.
const (
	LanguageEnglish = "english"
	LanguageHindi   = "hindi"
	LanguageTelugu  = "telugu"
)

// languageDirectives maps a normalized language to its prompt rule.
var languageDirectives = map[string]string{
	LanguageHindi: "\n**LANGUAGE RULE**: Respond in a mix of Hindi and English. Explain the concepts in Hindi, " +
		"but keep all technical terms, definitions, and context-specific labels in English exactly as they " +
		"appear in the documentation. Speak in a natural 'Hinglish' style.",
	LanguageTelugu: "\n**LANGUAGE RULE**: Respond in a mix of Telugu and English. Explain the concepts in Telugu, " +
		"but keep all technical terms, definitions, and context-specific labels in English exactly as they " +
		"appear in the documentation.",
}

// NormalizeLanguage lower-cases language and maps unknown or empty values
// to English.
func NormalizeLanguage(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if _, ok := languageDirectives[l]; ok {
		return l
	}
	return LanguageEnglish
}

// LanguageDirective returns the prompt rule for language, "" for English.
func LanguageDirective(language string) string {
	return languageDirectives[NormalizeLanguage(language)]
}

// SourceBlocks renders each retrieved document as a numbered source block,
// in rank order.
func SourceBlocks(docs []rag.Document) []string {
	blocks := make([]string, len(docs))
	for i, d := range docs {
		blocks[i] = fmt.Sprintf("\n--- SOURCE CHUNK %d ---\n%s\n", i+1, d.Content)
	}
	return blocks
}

// ComposePrompt builds the system and user messages for one answer.
// guidanceBlock is appended verbatim and may be empty.
func ComposePrompt(query string, blocks []string, language, guidanceBlock string) []*schema.Message {
	user := fmt.Sprintf("USER QUESTION: %s\n\nTEACHER'S PROVIDED CONTEXT:\n%s\n\n"+
		"Please explain this to the student using the rules provided in your system prompt. %s %s",
		query, strings.Join(blocks, ""), LanguageDirective(language), guidanceBlock)

	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(strings.TrimRight(user, " ")),
	}
}
