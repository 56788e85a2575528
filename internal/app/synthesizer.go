package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lean-assistant/internal/ai"
	"lean-assistant/internal/model"
)

const (
	DefaultGenerationTimeout = 25 * time.Second

	TimeoutMessage       = "Sorry, generating the answer took too long. Please try again in a moment."
	FailureMessage       = "Sorry, I could not generate an answer right now. Please try again later."
	EmptyResponseMessage = "The model returned an empty response."

	sourcePreviewRunes = 200
)

const DefaultSystemPrompt = `You are an engineer with deep hands-on experience applying Lean Manufacturing in real plants.

Rules:
- Answer clearly, practically and directly.
- Prefer actions on the shop floor over theory.
- Use real industrial examples (production lines, OEE, micro-stops, maintenance).
- If data is missing, ask for the minimum information needed.
- Stay within Lean topics; do not discuss politics or unrelated subjects.
- Keep answers short and useful for a shift supervisor.`

// Generator is the slice of the provider gateway the synthesizer needs.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, opts ...ai.GenerateOption) (string, error)
}

type synthesisState int

const (
	stateBuildingPrompt synthesisState = iota
	stateInvokingProvider
	stateSucceeded
	stateTimedOut
	stateFailed
)

func (s synthesisState) String() string {
	switch s {
	case stateBuildingPrompt:
		return "building_prompt"
	case stateInvokingProvider:
		return "invoking_provider"
	case stateSucceeded:
		return "succeeded"
	case stateTimedOut:
		return "timed_out"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type generation struct {
	text string
	err  error
}

// Synthesizer turns a question and its retrieved passages into an answer under
// a hard deadline.
type Synthesizer struct {
	generator    Generator
	systemPrompt string
	timeout      time.Duration
}

func NewSynthesizer(generator Generator, systemPrompt string, timeout time.Duration) *Synthesizer {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Synthesizer{generator: generator, systemPrompt: systemPrompt, timeout: timeout}
}

// Synthesize always returns a usable result. The error is non-nil when the
// answer is a fixed fallback message and wraps ErrGenerationTimeout or
// ErrGenerationFailure. The result is returned within the deadline even if
// the provider call is still in flight.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, passages []model.RetrievedPassage) (*model.SynthesisResult, error) {
	var (
		state  = stateBuildingPrompt
		prompt string
		answer string
		cause  error
	)

	for {
		switch state {
		case stateBuildingPrompt:
			prompt = buildPrompt(query, passages)
			state = stateInvokingProvider

		case stateInvokingProvider:
			answer, cause = s.invoke(ctx, prompt)
			switch {
			case cause == nil:
				state = stateSucceeded
			case errors.Is(cause, context.DeadlineExceeded):
				state = stateTimedOut
			default:
				state = stateFailed
			}

		case stateSucceeded:
			answer = strings.TrimSpace(answer)
			if answer == "" {
				answer = EmptyResponseMessage
			}
			return newResult(answer, passages, model.OutcomeSucceeded), nil

		case stateTimedOut:
			log.Printf("answer generation timed out after %s", s.timeout)
			return newResult(TimeoutMessage, passages, model.OutcomeTimedOut),
				fmt.Errorf("%w after %s", ErrGenerationTimeout, s.timeout)

		case stateFailed:
			log.Printf("answer generation failed: %v", cause)
			return newResult(FailureMessage, passages, model.OutcomeFailed),
				fmt.Errorf("%w: %v", ErrGenerationFailure, cause)
		}
	}
}

// invoke runs the provider call in its own goroutine and stops waiting when
// the deadline expires. The buffered channel lets an abandoned call finish.
func (s *Synthesizer) invoke(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := s.generator.Generate(genCtx, prompt, s.systemPrompt)
		done <- generation{text: text, err: err}
	}()

	select {
	case g := <-done:
		if g.err != nil && errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", context.DeadlineExceeded
		}
		return g.text, g.err
	case <-genCtx.Done():
		return "", genCtx.Err()
	}
}

func buildPrompt(query string, passages []model.RetrievedPassage) string {
	if len(passages) == 0 {
		return fmt.Sprintf(`Answer the following question using your knowledge of Lean methodologies:

%s

Give a clear, practical answer with examples where possible.`, query)
	}

	excerpts := make([]string, len(passages))
	for i, p := range passages {
		excerpts[i] = fmt.Sprintf("Source %d:\n%s", i+1, p.Content)
	}
	return fmt.Sprintf(`You are an expert in Lean Manufacturing with deep knowledge of:
- Toyota Production System
- Value Stream Mapping
- 5S, Kaizen, TPM
- JIT, Kanban, Pull Systems
- OEE and Lean metrics

Use the following context to answer the user's question clearly and practically, with examples where possible.

Context:
%s

User question: %s

Give a complete answer that:
1. Answers the question directly
2. Uses practical examples where relevant
3. Suggests next steps or further resources if applicable`, strings.Join(excerpts, "\n\n"), query)
}

func newResult(answer string, passages []model.RetrievedPassage, outcome model.Outcome) *model.SynthesisResult {
	sources := make([]model.Source, len(passages))
	for i, p := range passages {
		sources[i] = model.Source{Content: preview(p.Content), Metadata: p.Metadata}
	}
	return &model.SynthesisResult{Answer: answer, Sources: sources, Outcome: outcome}
}

func preview(content string) string {
	r := []rune(content)
	if len(r) <= sourcePreviewRunes {
		return content
	}
	return string(r[:sourcePreviewRunes]) + "..."
}
