// Package flow implements the conversation engine: the fixed pipeline of
// classification and generation steps that decide what the reservation
// assistant says next.
//
// Every step is a pure function of its structured inputs, the full transcript
// text and the latest stored self-reflection. Each performs exactly one
// completion gateway call with a purpose-built system prompt; the engine
// itself holds no session state.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tablevoice/tablevoice/internal/genai"
	"github.com/tablevoice/tablevoice/internal/models"
)

// ReflectionSource supplies the active self-reflection for prompt injection.
// The journal's reflection store satisfies this; tests substitute fixtures.
type ReflectionSource interface {
	Latest() string
}

// noReflection is the zero source used when no store is wired.
type noReflection struct{}

func (noReflection) Latest() string { return "" }

// Engine drives the decision steps of the reservation conversation.
type Engine struct {
	client      genai.ClientInterface
	reflections ReflectionSource
}

// NewEngine creates a conversation engine. reflections may be nil, in which
// case prompts run without self-critique guidance.
func NewEngine(client genai.ClientInterface, reflections ReflectionSource) *Engine {
	if reflections == nil {
		reflections = noReflection{}
	}
	return &Engine{client: client, reflections: reflections}
}

// withReflection prefixes the system prompt with the latest stored
// self-reflection, when one exists. Classification steps deliberately skip
// this: critique guidance shapes phrasing, not label choice.
func (e *Engine) withReflection(systemPrompt string) string {
	reflection := e.reflections.Latest()
	if reflection == "" {
		return systemPrompt
	}
	return fmt.Sprintf(reflectionPreamble, reflection) + systemPrompt
}

// CheckMissingInfo decides whether the booking request still lacks required
// information. It returns the literal 信息完整 when nothing is missing,
// otherwise free text naming what is. A contact method is always mandatory.
func (e *Engine) CheckMissingInfo(ctx context.Context, userInput, history string) (string, error) {
	userPrompt := fmt.Sprintf("用户输入: %s\n对话历史: %s\n请判断是否需要更多信息。", userInput, history)
	result, err := e.client.GeneratePrompt(ctx, checkMissingInfoPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("check missing info: %w", err)
	}
	slog.Debug("Engine.CheckMissingInfo: completed", "complete", IsInfoComplete(result))
	return result, nil
}

// IsInfoComplete reports whether a CheckMissingInfo result declares the
// request complete.
func IsInfoComplete(result string) bool {
	return strings.Contains(result, InfoCompleteMarker)
}

// AskUserForMissingInfo produces the follow-up question shown to the user.
func (e *Engine) AskUserForMissingInfo(ctx context.Context, missingInfo, history string) (string, error) {
	system := e.withReflection(fmt.Sprintf(askUserPrompt, missingInfo))
	result, err := e.client.GeneratePrompt(ctx, system, fmt.Sprintf("对话历史: %s", history))
	if err != nil {
		return "", fmt.Errorf("ask user for missing info: %w", err)
	}
	return result, nil
}

// ComposeMerchantMessage restates the consolidated booking request to the
// merchant in the first person, contact number included in full.
func (e *Engine) ComposeMerchantMessage(ctx context.Context, userInput, history string) (string, error) {
	system := e.withReflection(composeMerchantPrompt)
	userPrompt := fmt.Sprintf("用户输入: %s\n对话历史: %s", userInput, history)
	result, err := e.client.GeneratePrompt(ctx, system, userPrompt)
	if err != nil {
		return "", fmt.Errorf("compose merchant message: %w", err)
	}
	return result, nil
}

// RelayMerchantReply turns the merchant's latest utterance into a user-facing
// message. With isFinal it summarizes the booking outcome and asks nothing
// further; otherwise it prompts the user toward a decision.
func (e *Engine) RelayMerchantReply(ctx context.Context, merchantInput, history string, isFinal bool) (string, error) {
	prompt := relayProgressPrompt
	if isFinal {
		prompt = relayFinalPrompt
	}
	system := e.withReflection(prompt)
	userPrompt := fmt.Sprintf("商家回复: %s\n对话历史: %s", merchantInput, history)
	result, err := e.client.GeneratePrompt(ctx, system, userPrompt)
	if err != nil {
		return "", fmt.Errorf("relay merchant reply: %w", err)
	}
	return result, nil
}

// ComposeUserReplyToMerchant restates the user's latest decision or
// supplement for the merchant, first person, contact number un-redacted.
func (e *Engine) ComposeUserReplyToMerchant(ctx context.Context, userInput, history string) (string, error) {
	system := e.withReflection(composeUserReplyPrompt)
	userPrompt := fmt.Sprintf("用户最新输入: %s\n对话历史: %s", userInput, history)
	result, err := e.client.GeneratePrompt(ctx, system, userPrompt)
	if err != nil {
		return "", fmt.Errorf("compose user reply to merchant: %w", err)
	}
	return result, nil
}

// ClassifyMerchantReply labels the merchant's latest utterance with one of
// the four reply classifications. Merchant questions that pose a choice or
// ask for confirmation must classify as need_user; unrecognized model output
// degrades to continue.
func (e *Engine) ClassifyMerchantReply(ctx context.Context, merchantInput, history string) (models.ReplyClassification, error) {
	userPrompt := fmt.Sprintf("商家回复: %s\n对话历史: %s", merchantInput, history)
	result, err := e.client.GeneratePrompt(ctx, classifyReplyPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("classify merchant reply: %w", err)
	}
	label := models.ParseReplyClassification(result)
	slog.Debug("Engine.ClassifyMerchantReply: classified", "label", label)
	return label, nil
}

// IdentifyMissingInfoType names what a need_user merchant utterance is
// asking for, as a short label without elaboration.
func (e *Engine) IdentifyMissingInfoType(ctx context.Context, merchantInput, history string) (string, error) {
	userPrompt := fmt.Sprintf("商家回复: %s\n对话历史: %s", merchantInput, history)
	result, err := e.client.GeneratePrompt(ctx, identifyMissingInfoPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("identify missing info type: %w", err)
	}
	return strings.TrimSpace(result), nil
}

// CheckInfoProvided reports whether the transcript already contains the
// information type the merchant asked for.
func (e *Engine) CheckInfoProvided(ctx context.Context, infoType, history string) (models.InfoPresence, error) {
	system := fmt.Sprintf(checkInfoProvidedPrompt, infoType, history)
	result, err := e.client.GeneratePrompt(ctx, system, "请判断用户是否已提供此信息。")
	if err != nil {
		return "", fmt.Errorf("check info provided: %w", err)
	}
	return models.ParseInfoPresence(result), nil
}

// ExtractInfoValue pulls the concrete value for an information type out of
// the transcript, or returns the literal 找不到.
func (e *Engine) ExtractInfoValue(ctx context.Context, infoType, history string) (string, error) {
	system := fmt.Sprintf(extractInfoValuePrompt, infoType, history)
	result, err := e.client.GeneratePrompt(ctx, system, "请提取用户提供的具体值。")
	if err != nil {
		return "", fmt.Errorf("extract info value: %w", err)
	}
	return strings.TrimSpace(result), nil
}

// IsInfoValueFound reports whether an ExtractInfoValue result carries a
// usable value.
func IsInfoValueFound(value string) bool {
	return value != "" && !strings.Contains(value, InfoNotFoundMarker)
}

// SummarizeForHandoff condenses the transcript into the booking parameters.
func (e *Engine) SummarizeForHandoff(ctx context.Context, history string) (string, error) {
	result, err := e.client.GeneratePrompt(ctx, summarizeHandoffPrompt, fmt.Sprintf("对话日志: %s", history))
	if err != nil {
		return "", fmt.Errorf("summarize for handoff: %w", err)
	}
	return result, nil
}

// ReflectOnSession critiques the assistant's own behavior over the full
// transcript and yields concrete improvement suggestions.
func (e *Engine) ReflectOnSession(ctx context.Context, transcript string) (string, error) {
	system := fmt.Sprintf(reflectPrompt, transcript)
	result, err := e.client.GeneratePrompt(ctx, system, "请根据以上对话日志反思AI的表现。")
	if err != nil {
		return "", fmt.Errorf("reflect on session: %w", err)
	}
	return result, nil
}

// DistillReflections merges prior reflections into a single guidance entry.
func (e *Engine) DistillReflections(ctx context.Context, reflections []string) (string, error) {
	system := fmt.Sprintf(distillPrompt, strings.Join(reflections, "\n\n"))
	result, err := e.client.GeneratePrompt(ctx, system, "请输出合并后的反思建议。")
	if err != nil {
		return "", fmt.Errorf("distill reflections: %w", err)
	}
	return result, nil
}
