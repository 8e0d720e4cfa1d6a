package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tablevoice/tablevoice/internal/models"
)

func TestCheckMissingInfoCompleteMarker(t *testing.T) {
	client := &scriptedClient{responses: []string{"信息完整"}}
	engine := NewEngine(client, nil)

	result, err := engine.CheckMissingInfo(context.Background(), "预定今晚7点，4人，电话13800000000", "用户: 预定今晚7点，4人，电话13800000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsInfoComplete(result) {
		t.Errorf("expected completeness marker detected, got %q", result)
	}
}

func TestCheckMissingInfoMandatoryContact(t *testing.T) {
	// The completeness prompt must carry the mandatory-contact rule so the
	// model can never declare a contactless request complete.
	client := &scriptedClient{responses: []string{"还需要联系方式"}}
	engine := NewEngine(client, nil)

	result, err := engine.CheckMissingInfo(context.Background(), "预定今晚7点，4人", "用户: 预定今晚7点，4人")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsInfoComplete(result) {
		t.Errorf("expected incomplete result, got %q", result)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(client.calls))
	}
	if !strings.Contains(client.calls[0].System, "联系方式是完成预定的必要信息") {
		t.Error("expected mandatory-contact rule in completeness prompt")
	}
	if !strings.Contains(client.calls[0].User, "预定今晚7点，4人") {
		t.Error("expected user input forwarded to the gateway")
	}
}

func TestReflectionInjectedIntoGenerationPrompts(t *testing.T) {
	client := &scriptedClient{responses: []string{"q", "m", "r", "u"}}
	engine := NewEngine(client, staticReflection("追问时应一次只问一个问题"))

	ctx := context.Background()
	engine.AskUserForMissingInfo(ctx, "联系方式", "history")
	engine.ComposeMerchantMessage(ctx, "预定4人", "history")
	engine.RelayMerchantReply(ctx, "只有8点", "history", false)
	engine.ComposeUserReplyToMerchant(ctx, "同意8点", "history")

	for i, call := range client.calls {
		if !strings.Contains(call.System, "【请注意以下自我反思与改进建议：追问时应一次只问一个问题】") {
			t.Errorf("call %d: expected reflection preamble in system prompt", i)
		}
	}
}

func TestReflectionNotInjectedIntoClassification(t *testing.T) {
	client := &scriptedClient{responses: []string{"need_user"}}
	engine := NewEngine(client, staticReflection("某条反思"))

	if _, err := engine.ClassifyMerchantReply(context.Background(), "是否可以8点？", "history"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(client.calls[0].System, "自我反思") {
		t.Error("classification prompt must not carry reflection guidance")
	}
}

func TestClassifyMerchantReplyLabels(t *testing.T) {
	cases := map[string]models.ReplyClassification{
		"waiting":   models.ReplyWaiting,
		"success":   models.ReplySuccess,
		"need_user": models.ReplyNeedUser,
		"continue":  models.ReplyContinue,
		"NEED_USER": models.ReplyNeedUser,
		"请稍等":       models.ReplyContinue, // out-of-vocabulary degrades
	}
	for raw, want := range cases {
		client := &scriptedClient{responses: []string{raw}}
		engine := NewEngine(client, nil)
		got, err := engine.ClassifyMerchantReply(context.Background(), "回复", "history")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if got != want {
			t.Errorf("classify(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClassifyPromptCarriesChoicePrecedenceRule(t *testing.T) {
	client := &scriptedClient{responses: []string{"need_user"}}
	engine := NewEngine(client, nil)
	engine.ClassifyMerchantReply(context.Background(), "只有8点的位置，可以吗？", "history")

	system := client.calls[0].System
	for _, pattern := range []string{"是否可以", "能否接受", "要不要", "need_user"} {
		if !strings.Contains(system, pattern) {
			t.Errorf("expected classification prompt to name choice pattern %q", pattern)
		}
	}
}

func TestRelayMerchantReplyFinalVsProgress(t *testing.T) {
	client := &scriptedClient{responses: []string{"final", "progress"}}
	engine := NewEngine(client, nil)

	ctx := context.Background()
	engine.RelayMerchantReply(ctx, "已为您预定成功", "history", true)
	engine.RelayMerchantReply(ctx, "只有8点", "history", false)

	if !strings.Contains(client.calls[0].System, "总结本次预定的最终结果") {
		t.Error("expected final relay to use the closing-summary prompt")
	}
	if !strings.Contains(client.calls[1].System, "引导用户做出下一步决策") {
		t.Error("expected non-final relay to use the decision-guidance prompt")
	}
	for i, call := range client.calls {
		if !strings.Contains(call.System, "不要暴露AI身份") {
			t.Errorf("call %d: relay prompt must forbid revealing the agent", i)
		}
	}
}

func TestComposePromptsForbidRedaction(t *testing.T) {
	client := &scriptedClient{responses: []string{"a", "b"}}
	engine := NewEngine(client, nil)

	ctx := context.Background()
	engine.ComposeMerchantMessage(ctx, "电话13800000000", "history")
	engine.ComposeUserReplyToMerchant(ctx, "电话13800000000", "history")

	for i, call := range client.calls {
		if !strings.Contains(call.System, "不要隐藏任何数字") {
			t.Errorf("call %d: compose prompt must require the full contact number", i)
		}
	}
}

func TestCheckInfoProvidedParsing(t *testing.T) {
	for raw, want := range map[string]models.InfoPresence{
		"已提供": models.InfoProvided,
		"未提供": models.InfoNotProvided,
		"可能":  models.InfoNotProvided,
	} {
		client := &scriptedClient{responses: []string{raw}}
		engine := NewEngine(client, nil)
		got, err := engine.CheckInfoProvided(context.Background(), "联系方式", "history")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("CheckInfoProvided with %q = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractInfoValueNotFound(t *testing.T) {
	client := &scriptedClient{responses: []string{"找不到"}}
	engine := NewEngine(client, nil)
	value, err := engine.ExtractInfoValue(context.Background(), "联系方式", "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsInfoValueFound(value) {
		t.Errorf("expected not-found marker recognized, got %q", value)
	}
	if IsInfoValueFound("") {
		t.Error("empty value must not count as found")
	}
	if !IsInfoValueFound("13800000000") {
		t.Error("concrete value must count as found")
	}
}

func TestDistillReflectionsJoinsEntries(t *testing.T) {
	client := &scriptedClient{responses: []string{"合并后的建议"}}
	engine := NewEngine(client, nil)

	out, err := engine.DistillReflections(context.Background(), []string{"反思一", "反思二", "反思三"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "合并后的建议" {
		t.Errorf("expected distilled text, got %q", out)
	}
	system := client.calls[0].System
	for _, entry := range []string{"反思一", "反思二", "反思三"} {
		if !strings.Contains(system, entry) {
			t.Errorf("expected %q included in distillation prompt", entry)
		}
	}
}

func TestReflectOnSessionScopesToAssistant(t *testing.T) {
	client := &scriptedClient{responses: []string{"反思"}}
	engine := NewEngine(client, nil)
	engine.ReflectOnSession(context.Background(), "对话日志内容")

	if !strings.Contains(client.calls[0].System, "不要去评价用户或商家的行为") {
		t.Error("reflection prompt must scope critique to the assistant itself")
	}
	if !strings.Contains(client.calls[0].System, "对话日志内容") {
		t.Error("reflection prompt must embed the transcript")
	}
}

func TestStepErrorsPropagate(t *testing.T) {
	client := &scriptedClient{err: errors.New("backend down")}
	engine := NewEngine(client, nil)

	if _, err := engine.CheckMissingInfo(context.Background(), "in", "h"); err == nil {
		t.Error("expected error from CheckMissingInfo")
	}
	if _, err := engine.ClassifyMerchantReply(context.Background(), "in", "h"); err == nil {
		t.Error("expected error from ClassifyMerchantReply")
	}
	if _, err := engine.ReflectOnSession(context.Background(), "t"); err == nil {
		t.Error("expected error from ReflectOnSession")
	}
}
