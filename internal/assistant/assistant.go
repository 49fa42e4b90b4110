// Package assistant отвечает на вопросы пользователя о найденном заболевании через внешний LLM.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"skinscope/internal/common"
)

// DefaultLanguage - язык ответа, если клиент его не указал.
const DefaultLanguage = "English"

// Assistant строит промпт и передаёт его генератору текста.
type Assistant struct {
	gen TextGenerator
}

// New создаёт ассистента. gen == nil означает, что сервис не настроен (нет ключа API):
// тогда каждый вызов Ask возвращает common.ErrAssistantUnavailable.
func New(gen TextGenerator) *Assistant {
	return &Assistant{gen: gen}
}

// Ready сообщает, настроен ли генератор.
func (a *Assistant) Ready() bool {
	return a != nil && a.gen != nil
}

// Ask задаёт вопрос о заболевании disease и возвращает ответ на языке language.
func (a *Assistant) Ask(ctx context.Context, disease, question, language string) (string, error) {
	if !a.Ready() {
		return "", common.ErrAssistantUnavailable
	}

	answer, err := a.gen.GenerateText(ctx, BuildPrompt(disease, question, language))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrAssistantError, err)
	}
	return answer, nil
}

// BuildPrompt подставляет заболевание, вопрос и язык в фиксированный шаблон.
func BuildPrompt(disease, question, language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert dermatologist assistant. The detected skin condition is '%s'.\n\n", disease)
	fmt.Fprintf(&b, "The user asked: '%s'.\n\n", question)
	fmt.Fprintf(&b, "Provide the answer in **step-by-step bullet points** in %s (not long paragraphs), covering:\n", language)
	b.WriteString("1. What it is\n2. How it happens\n3. Reasons/Causes\n4. Symptoms\n")
	b.WriteString("5. Step-by-Step Management/Treatment\n6. Prevention\n\n")
	b.WriteString("Always end by advising to consult a certified dermatologist.")
	return b.String()
}
