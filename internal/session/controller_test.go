package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/tablevoice/tablevoice/internal/flow"
	"github.com/tablevoice/tablevoice/internal/models"
)

// scriptedClient replays canned completions in call order and records every
// system/user prompt pair it was asked for.
type scriptedClient struct {
	responses []string
	calls     []promptCall
}

type promptCall struct {
	System string
	User   string
}

func (c *scriptedClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls = append(c.calls, promptCall{System: systemPrompt, User: userPrompt})
	if len(c.responses) == 0 {
		return "", fmt.Errorf("scripted client exhausted after %d calls", len(c.calls))
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *scriptedClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.GeneratePrompt(ctx, "", "")
}

type loggedTurn struct {
	Speaker models.Speaker
	Content string
}

type memTranscript struct {
	turns []loggedTurn
}

func (m *memTranscript) Append(speaker models.Speaker, content string) {
	m.turns = append(m.turns, loggedTurn{speaker, content})
}

func (m *memTranscript) Clear() { m.turns = nil }

func (m *memTranscript) ReadAll() string {
	var b strings.Builder
	for _, t := range m.turns {
		fmt.Fprintf(&b, "[%s]: %s\n", t.Speaker, t.Content)
	}
	return b.String()
}

type memReflections struct {
	entries   []string
	distilled string
}

func (m *memReflections) Append(text string, refined bool) { m.entries = append(m.entries, text) }
func (m *memReflections) All() []string                    { return m.entries }
func (m *memReflections) ReplaceWith(distilled string) {
	m.entries = []string{distilled}
	m.distilled = distilled
}

type memArchive struct {
	records []models.BookingRecord
	err     error
}

func (m *memArchive) SaveBooking(record models.BookingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type recordingSynth struct {
	spoken []string
	err    error
}

func (s *recordingSynth) SynthesizeAndPlay(ctx context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return s.err
}

func newTestController(t *testing.T, client *scriptedClient, input string, opts ...Option) (*Controller, *memTranscript, *memReflections, *strings.Builder) {
	t.Helper()
	transcript := &memTranscript{}
	reflections := &memReflections{}
	out := &strings.Builder{}
	base := []Option{WithIO(strings.NewReader(input), out)}
	engine := flow.NewEngine(client, nil)
	ctrl := NewController(engine, transcript, reflections, append(base, opts...)...)
	return ctrl, transcript, reflections, out
}

func TestRun_HappyPath(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，我想预定今晚7点，两位，联系电话13800000000。",
		"success",
		"已为您成功预定今晚7点两位。",
		"本次会话表现良好。",
		"今晚7点两位，预定成功。",
	}}
	synth := &recordingSynth{}
	archive := &memArchive{}
	input := "帮我订今晚7点海底捞，两位，电话13800000000\n" +
		"已为您预定成功，今晚7点两位\n"
	ctrl, transcript, reflections, out := newTestController(t, client, input,
		WithSynthesizer(synth), WithArchive(archive))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []loggedTurn{
		{models.SpeakerUser, "帮我订今晚7点海底捞，两位，电话13800000000"},
		{models.SpeakerAssistant, "您好，我想预定今晚7点，两位，联系电话13800000000。"},
		{models.SpeakerMerchant, "已为您预定成功，今晚7点两位"},
		{models.SpeakerAssistant, "已为您成功预定今晚7点两位。"},
	}
	if len(transcript.turns) != len(want) {
		t.Fatalf("transcript has %d turns, want %d: %+v", len(transcript.turns), len(want), transcript.turns)
	}
	for i, w := range want {
		if transcript.turns[i] != w {
			t.Errorf("turn %d = %+v, want %+v", i, transcript.turns[i], w)
		}
	}

	if len(synth.spoken) != 1 || !strings.Contains(synth.spoken[0], "预定今晚7点") {
		t.Errorf("synthesizer spoke %v, want the merchant message", synth.spoken)
	}
	if len(reflections.entries) != 1 || reflections.entries[0] != "本次会话表现良好。" {
		t.Errorf("reflections = %v", reflections.entries)
	}
	if len(archive.records) != 1 {
		t.Fatalf("archive has %d records, want 1", len(archive.records))
	}
	if rec := archive.records[0]; !rec.Succeeded || rec.Summary != "今晚7点两位，预定成功。" {
		t.Errorf("archived record = %+v", rec)
	}
	if !strings.Contains(out.String(), "=== 预定流程完成 ===") {
		t.Errorf("final outcome banner missing from output:\n%s", out.String())
	}
}

func TestRun_CollectsMissingInfoBeforeContactingMerchant(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"缺少联系电话",
		"请问您的联系电话是多少？",
		"信息完整",
		"您好，预定今晚7点两位，电话13800000000。",
		"success",
		"预定成功。",
		"反思内容。",
	}}
	input := "订今晚7点，两位\n" +
		"13800000000\n" +
		"好的，订好了\n"
	ctrl, transcript, _, out := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !strings.Contains(out.String(), "请问您的联系电话是多少？") {
		t.Errorf("missing-info question not shown to user:\n%s", out.String())
	}
	// Second completeness check must see the consolidated request.
	secondCheck := client.calls[2]
	if !strings.Contains(secondCheck.User, "订今晚7点，两位 13800000000") {
		t.Errorf("supplement not consolidated into recheck: %q", secondCheck.User)
	}
	if transcript.turns[2] != (loggedTurn{models.SpeakerUser, "13800000000"}) {
		t.Errorf("supplement turn = %+v", transcript.turns[2])
	}
}

func TestRun_NeedUserWithInfoAlreadyInHistory(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点，电话13800000000。",
		"need_user",
		"用餐人数",
		"用户已提供",
		"两位",
		"一共两位。",
		"success",
		"好的，已为您预定成功。",
		"反思内容。",
	}}
	input := "订今晚7点两位，电话13800000000\n" +
		"请问一共几位？\n" +
		"好的，两位已订\n"
	ctrl, transcript, _, out := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// The extracted value becomes a user turn; the user is never re-asked.
	var sawExtractedUserTurn bool
	for _, turn := range transcript.turns {
		if turn.Speaker == models.SpeakerUser && turn.Content == "两位" {
			sawExtractedUserTurn = true
		}
	}
	if !sawExtractedUserTurn {
		t.Errorf("extracted value not recorded as user turn: %+v", transcript.turns)
	}
	if strings.Contains(out.String(), "请补充所需信息") {
		t.Errorf("user was re-asked despite info being in history:\n%s", out.String())
	}
}

func TestRun_NeedUserAsksUserWhenInfoMissing(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"need_user",
		"联系电话",
		"用户未提供",
		"商家需要您的联系电话，请提供。",
		"电话是13900000000。",
		"success",
		"预定成功。",
		"反思内容。",
	}}
	input := "订今晚7点两位\n" +
		"请留个联系电话\n" +
		"13900000000\n" +
		"好的已订\n"
	ctrl, transcript, _, out := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !strings.Contains(out.String(), "商家需要您的联系电话，请提供。") {
		t.Errorf("merchant request not relayed to user:\n%s", out.String())
	}
	var sawSupplement, sawRelayBack bool
	for _, turn := range transcript.turns {
		if turn.Speaker == models.SpeakerUser && turn.Content == "13900000000" {
			sawSupplement = true
		}
		if turn.Speaker == models.SpeakerAssistant && turn.Content == "电话是13900000000。" {
			sawRelayBack = true
		}
	}
	if !sawSupplement || !sawRelayBack {
		t.Errorf("supplement=%v relayBack=%v: %+v", sawSupplement, sawRelayBack, transcript.turns)
	}
}

func TestRun_WaitingThenSentinelEndsWithoutSuccess(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"waiting",
		"反思内容。",
		"会话中止，未完成预定。",
	}}
	archive := &memArchive{}
	input := "订今晚7点两位，电话13800000000\n" +
		"稍等，我查一下\n" +
		"结束\n"
	ctrl, _, _, out := newTestController(t, client, input, WithArchive(archive))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !strings.Contains(out.String(), "等待下一步回复") {
		t.Errorf("waiting state not reported:\n%s", out.String())
	}
	if len(archive.records) != 1 {
		t.Fatalf("archive has %d records, want 1", len(archive.records))
	}
	if archive.records[0].Succeeded {
		t.Errorf("session ended by sentinel must not be marked succeeded")
	}
}

func TestRun_SentinelAcceptsEnglishEnd(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
	}}
	input := "订今晚7点两位，电话13800000000\n" +
		"  End  \n"
	ctrl, _, _, _ := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Three responses consumed means classification never ran on "End".
	if got := len(client.calls); got != 3 {
		t.Errorf("client called %d times, want 3 (sentinel must bypass classification)", got)
	}
}

func TestRun_EmptyInputIsReprompted(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
	}}
	input := "\n\n订今晚7点两位，电话13800000000\n" +
		"结束\n"
	ctrl, transcript, _, out := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if transcript.turns[0].Content != "订今晚7点两位，电话13800000000" {
		t.Errorf("first recorded turn = %+v", transcript.turns[0])
	}
	if n := strings.Count(out.String(), "请输入你的预定需求"); n < 3 {
		t.Errorf("expected repeated prompt on empty input, prompt shown %d times", n)
	}
}

func TestRun_EOFBeforeAnyTurnIsGraceful(t *testing.T) {
	client := &scriptedClient{}
	ctrl, transcript, reflections, _ := newTestController(t, client, "")

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("EOF must end the session gracefully, got %v", err)
	}
	if len(transcript.turns) != 0 {
		t.Errorf("no turns expected, got %+v", transcript.turns)
	}
	if len(reflections.entries) != 0 {
		t.Errorf("empty session must not reflect, got %v", reflections.entries)
	}
	if len(client.calls) != 0 {
		t.Errorf("no completions expected, got %d calls", len(client.calls))
	}
}

func TestRun_CancelDuringBlockedReadReturnsPromptly(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
	}}
	pr, pw := io.Pipe()
	defer pw.Close()

	transcript := &memTranscript{}
	reflections := &memReflections{}
	engine := flow.NewEngine(client, nil)
	ctrl := NewController(engine, transcript, reflections, WithIO(pr, io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// Write blocks until the controller consumes the line, so after this the
	// session is past info collection and parked on the merchant read.
	if _, err := pw.Write([]byte("订今晚7点两位，电话13800000000\n")); err != nil {
		t.Fatalf("pipe write failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancellation must end the session gracefully, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation during a blocked read")
	}
	if len(reflections.entries) != 1 {
		t.Errorf("interrupted session must still reflect, got %v", reflections.entries)
	}
}

func TestRun_InterruptMidSessionStillReflects(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
	}}
	// Input ends after the merchant contact; the merchant read hits EOF.
	input := "订今晚7点两位，电话13800000000\n"
	ctrl, _, reflections, _ := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(reflections.entries) != 1 {
		t.Fatalf("interrupted session must still reflect, got %v", reflections.entries)
	}
}

func TestRun_DistillsWhenRetentionExceeded(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"第三条反思。",
		"合并后的反思。",
	}}
	input := "订今晚7点两位，电话13800000000\n" +
		"结束\n"
	reflectionsSeed := []string{"第一条反思。", "第二条反思。"}

	transcript := &memTranscript{}
	reflections := &memReflections{entries: reflectionsSeed}
	engine := flow.NewEngine(client, nil)
	ctrl := NewController(engine, transcript, reflections,
		WithIO(strings.NewReader(input), io.Discard),
		WithMaxReflectionEntries(2))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if reflections.distilled != "合并后的反思。" {
		t.Errorf("distilled = %q, want merged reflection", reflections.distilled)
	}
	if len(reflections.entries) != 1 {
		t.Errorf("store not collapsed: %v", reflections.entries)
	}
}

func TestRun_SynthesisFailureDoesNotAbortSession(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
	}}
	synth := &recordingSynth{err: fmt.Errorf("speaker unavailable")}
	input := "订今晚7点两位，电话13800000000\n" +
		"结束\n"
	ctrl, _, _, _ := newTestController(t, client, input, WithSynthesizer(synth))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("synthesis failure must not abort the session: %v", err)
	}
	if len(synth.spoken) != 1 {
		t.Errorf("synthesizer not invoked: %v", synth.spoken)
	}
}

func TestRun_ArchiveFailureIsSwallowed(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"信息完整",
		"您好，预定今晚7点两位。",
		"反思内容。",
		"会话摘要。",
	}}
	archive := &memArchive{err: fmt.Errorf("database gone")}
	input := "订今晚7点两位，电话13800000000\n" +
		"结束\n"
	ctrl, _, _, _ := newTestController(t, client, input, WithArchive(archive))

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("archive failure must not abort the session: %v", err)
	}
}

func TestRun_ServiceErrorIsReturned(t *testing.T) {
	client := &scriptedClient{} // exhausted immediately
	input := "订今晚7点两位，电话13800000000\n"
	ctrl, _, _, _ := newTestController(t, client, input)

	if err := ctrl.Run(context.Background()); err == nil {
		t.Fatal("completion failure must surface from Run")
	}
}
