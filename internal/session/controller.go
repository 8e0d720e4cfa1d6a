// Package session drives one reservation conversation end to end: the
// information-collection phase, the merchant exchange loop, and the
// end-of-session reflection.
//
// The controller owns all I/O surrounding each decision (terminal prompts,
// voice synthesis, transcript logging) and the state transitions; the
// conversation engine supplies the decision at each node.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tablevoice/tablevoice/internal/flow"
	"github.com/tablevoice/tablevoice/internal/models"
)

// DefaultMaxReflectionEntries is the retention threshold above which the
// reflection store is distilled into a single entry.
const DefaultMaxReflectionEntries = 5

// End-of-session sentinels accepted on the merchant channel.
var endSentinels = map[string]bool{"结束": true, "end": true}

// Transcript is the dialogue log the controller records every turn into.
type Transcript interface {
	Append(speaker models.Speaker, content string)
	Clear()
	ReadAll() string
}

// Reflections is the persistent cross-session reflection store.
type Reflections interface {
	Append(text string, refined bool)
	All() []string
	ReplaceWith(distilled string)
}

// Synthesizer speaks merchant-directed messages aloud. Failures are
// best-effort: logged, never session-fatal.
type Synthesizer interface {
	SynthesizeAndPlay(ctx context.Context, text string) error
}

// Archive persists the handoff summary of a finished session.
type Archive interface {
	SaveBooking(record models.BookingRecord) error
}

// InputFunc obtains one line of user or merchant input. Implementations may
// read the terminal or a voice-transcription pipeline.
type InputFunc func(ctx context.Context, prompt string) (string, error)

// Opts holds controller configuration.
type Opts struct {
	In                   io.Reader
	Out                  io.Writer
	Synthesizer          Synthesizer
	Archive              Archive
	UserInput            InputFunc
	MaxReflectionEntries int
}

// Option configures the controller.
type Option func(*Opts)

// WithIO sets the terminal reader and writer.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *Opts) { o.In = in; o.Out = out }
}

// WithSynthesizer enables voice output for merchant-directed messages.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Opts) { o.Synthesizer = s }
}

// WithArchive enables booking-summary persistence at session end.
func WithArchive(a Archive) Option {
	return func(o *Opts) { o.Archive = a }
}

// WithUserInput overrides how user input is obtained, e.g. with a
// record-and-transcribe pipeline instead of the terminal.
func WithUserInput(fn InputFunc) Option {
	return func(o *Opts) { o.UserInput = fn }
}

// WithMaxReflectionEntries sets the reflection retention threshold.
func WithMaxReflectionEntries(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.MaxReflectionEntries = n
		}
	}
}

// Controller runs reservation sessions.
type Controller struct {
	engine      *flow.Engine
	transcript  Transcript
	reflections Reflections
	synth       Synthesizer
	archive     Archive
	userInput   InputFunc

	in             *bufio.Reader
	out            io.Writer
	maxReflections int

	// One reader goroutine per controller feeds readCh, so a line buffered
	// while a prompt was pending is not lost across prompts.
	readOnce sync.Once
	readCh   chan readResult

	// history mirrors the transcript as plain "speaker: content" lines,
	// the shape every prompt consumes.
	history []string

	succeeded bool
}

// NewController wires a session controller around the conversation engine
// and the two persistent logs.
func NewController(engine *flow.Engine, transcript Transcript, reflections Reflections, opts ...Option) *Controller {
	cfg := Opts{MaxReflectionEntries: DefaultMaxReflectionEntries}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Controller{
		engine:         engine,
		transcript:     transcript,
		reflections:    reflections,
		synth:          cfg.Synthesizer,
		archive:        cfg.Archive,
		out:            cfg.Out,
		maxReflections: cfg.MaxReflectionEntries,
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	c.in = bufio.NewReader(cfg.In)
	c.userInput = cfg.UserInput
	if c.userInput == nil {
		c.userInput = c.promptLine
	}
	return c
}

// Run executes one complete session. It returns nil on normal completion and
// on graceful interrupt; a completion-service failure is returned so the
// caller can report it. End-of-session reflection runs in every case,
// best-effort.
func (c *Controller) Run(ctx context.Context) (err error) {
	c.transcript.Clear()
	c.history = c.history[:0]
	c.succeeded = false

	c.printf("=== 语音预定订餐系统 ===\n")

	defer func() { c.finalize(c.succeeded) }()

	userInput, err := c.userInput(ctx, "用户，请输入你的预定需求：\n> ")
	if err != nil {
		return c.normalizeInputErr(err)
	}
	c.recordTurn(models.SpeakerUser, userInput)

	consolidated, err := c.collectMissingInfo(ctx, userInput)
	if err != nil {
		return err
	}

	if err := c.contactMerchant(ctx, consolidated); err != nil {
		return err
	}

	return c.merchantLoop(ctx)
}

// collectMissingInfo loops the completeness check until the request carries
// everything the booking needs, asking the user for each missing piece.
func (c *Controller) collectMissingInfo(ctx context.Context, userInput string) (string, error) {
	consolidated := userInput
	for {
		check, err := c.engine.CheckMissingInfo(ctx, consolidated, c.historyText())
		if err != nil {
			return "", err
		}
		if flow.IsInfoComplete(check) {
			c.printf("[INFO] AI信息检查: 信息完整\n")
			return consolidated, nil
		}
		c.printf("[INFO] AI信息检查: %s\n", check)

		question, err := c.engine.AskUserForMissingInfo(ctx, check, c.historyText())
		if err != nil {
			return "", err
		}
		c.printf("AI对用户: %s\n", question)
		c.recordTurn(models.SpeakerAssistant, question)

		supplement, err := c.userInput(ctx, "用户，请补充信息：\n> ")
		if err != nil {
			return "", c.normalizeInputErr(err)
		}
		consolidated = consolidated + " " + supplement
		c.recordTurn(models.SpeakerUser, supplement)
	}
}

// contactMerchant composes and delivers the opening message to the merchant.
func (c *Controller) contactMerchant(ctx context.Context, consolidated string) error {
	message, err := c.engine.ComposeMerchantMessage(ctx, consolidated, c.historyText())
	if err != nil {
		return err
	}
	c.deliverToMerchant(ctx, message)
	return nil
}

// merchantLoop reads merchant replies until the booking closes or the
// sentinel ends the session, dispatching on the reply classification.
func (c *Controller) merchantLoop(ctx context.Context) error {
	for {
		merchantInput, err := c.userInput(ctx, "商家，请输入你的回复（输入'结束'完成预定）：\n> ")
		if err != nil {
			return c.normalizeInputErr(err)
		}
		if endSentinels[strings.ToLower(strings.TrimSpace(merchantInput))] {
			c.printf("预定流程结束。\n")
			return nil
		}
		c.recordTurn(models.SpeakerMerchant, merchantInput)

		label, err := c.engine.ClassifyMerchantReply(ctx, merchantInput, c.historyText())
		if err != nil {
			return err
		}
		c.printf("[INFO] AI判断商家回复类型: %s\n", label)

		switch label {
		case models.ReplyWaiting, models.ReplyContinue:
			c.printf("[INFO] 商家正在处理中，等待下一步回复...\n")
		case models.ReplySuccess:
			return c.handleSuccess(ctx, merchantInput)
		case models.ReplyNeedUser:
			if err := c.handleNeedUser(ctx, merchantInput); err != nil {
				return err
			}
		}
	}
}

// handleSuccess closes the session with a final outcome summary to the user.
func (c *Controller) handleSuccess(ctx context.Context, merchantInput string) error {
	final, err := c.engine.RelayMerchantReply(ctx, merchantInput, c.historyText(), true)
	if err != nil {
		return err
	}
	c.recordTurn(models.SpeakerAssistant, final)
	c.succeeded = true
	c.printf("\n=== 预定流程完成 ===\n最终结果: %s\n", final)
	return nil
}

// handleNeedUser resolves a merchant request for user input, either by
// relaying a value already present in the transcript or by asking the user.
func (c *Controller) handleNeedUser(ctx context.Context, merchantInput string) error {
	infoType, err := c.engine.IdentifyMissingInfoType(ctx, merchantInput, c.historyText())
	if err != nil {
		return err
	}
	c.printf("[INFO] AI识别到商家需要的信息类型摘要: %s\n", infoType)

	presence, err := c.engine.CheckInfoProvided(ctx, infoType, c.historyText())
	if err != nil {
		return err
	}
	c.printf("[INFO] AI核对历史信息状态: %s\n", presence)

	if presence == models.InfoProvided {
		value, err := c.engine.ExtractInfoValue(ctx, infoType, c.historyText())
		if err != nil {
			return err
		}
		if flow.IsInfoValueFound(value) {
			c.printf("[INFO] AI从历史提取到具体信息: %s\n", value)
			c.recordTurn(models.SpeakerUser, value)
			return c.relayUserToMerchant(ctx, value)
		}
		// The presence check and the extraction disagree; treat the
		// information as missing and go back to the user.
		slog.Warn("Controller.handleNeedUser: provided info not extractable, asking user", "infoType", infoType)
	}

	relay, err := c.engine.RelayMerchantReply(ctx, merchantInput, c.historyText(), false)
	if err != nil {
		return err
	}
	c.printf("AI对用户: %s\n", relay)
	c.recordTurn(models.SpeakerAssistant, relay)

	supplement, err := c.userInput(ctx, "用户，请补充所需信息：\n> ")
	if err != nil {
		return c.normalizeInputErr(err)
	}
	c.recordTurn(models.SpeakerUser, supplement)
	return c.relayUserToMerchant(ctx, supplement)
}

// relayUserToMerchant restates the user's latest input for the merchant and
// delivers it by text and voice.
func (c *Controller) relayUserToMerchant(ctx context.Context, userInput string) error {
	message, err := c.engine.ComposeUserReplyToMerchant(ctx, userInput, c.historyText())
	if err != nil {
		return err
	}
	c.deliverToMerchant(ctx, message)
	return nil
}

// deliverToMerchant prints, records, and speaks one merchant-directed
// message. Synthesis failures never abort the session.
func (c *Controller) deliverToMerchant(ctx context.Context, message string) {
	c.printf("AI对商家: %s\n", message)
	if c.synth != nil {
		if err := c.synth.SynthesizeAndPlay(ctx, message); err != nil {
			slog.Warn("Controller.deliverToMerchant: voice synthesis failed", "error", err)
		}
	}
	c.recordTurn(models.SpeakerAssistant, message)
}

// finalize runs the end-of-session reflection, distillation check and
// booking archival. Everything here is best-effort: failures are logged and
// never propagated.
func (c *Controller) finalize(completed bool) {
	fullLog := c.transcript.ReadAll()
	if strings.TrimSpace(fullLog) == "" {
		slog.Debug("Controller.finalize: empty transcript, skipping reflection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reflection, err := c.engine.ReflectOnSession(ctx, fullLog)
	if err != nil {
		slog.Error("Controller.finalize: reflection failed", "error", err)
		return
	}
	c.printf("\n=== AI自我反思与改进建议 ===\n%s\n", reflection)
	c.reflections.Append(reflection, false)

	all := c.reflections.All()
	if len(all) > c.maxReflections {
		distilled, err := c.engine.DistillReflections(ctx, all)
		if err != nil {
			slog.Error("Controller.finalize: reflection distillation failed", "error", err)
		} else {
			c.reflections.ReplaceWith(distilled)
			slog.Info("Controller.finalize: reflection store distilled", "entries", len(all), "threshold", c.maxReflections)
		}
	}

	if c.archive != nil {
		summary, err := c.engine.SummarizeForHandoff(ctx, fullLog)
		if err != nil {
			slog.Error("Controller.finalize: handoff summary failed", "error", err)
			return
		}
		record := models.BookingRecord{Summary: summary, Succeeded: completed, CreatedAt: time.Now()}
		if err := c.archive.SaveBooking(record); err != nil {
			slog.Error("Controller.finalize: failed to archive booking", "error", err)
		}
	}
}

// recordTurn appends one utterance to both the persistent transcript and the
// in-memory history mirror, synchronously, before the next decision step.
func (c *Controller) recordTurn(speaker models.Speaker, content string) {
	c.transcript.Append(speaker, content)
	c.history = append(c.history, fmt.Sprintf("%s: %s", speaker, content))
}

// historyText renders the conversation history the way prompts consume it.
func (c *Controller) historyText() string {
	return strings.Join(c.history, "\n")
}

type readResult struct {
	line string
	err  error
}

// reader starts the shared input goroutine on first use. The channel closes
// after the first read error; later receives report EOF.
func (c *Controller) reader() <-chan readResult {
	c.readOnce.Do(func() {
		c.readCh = make(chan readResult)
		go func() {
			for {
				line, err := c.in.ReadString('\n')
				c.readCh <- readResult{line: line, err: err}
				if err != nil {
					close(c.readCh)
					return
				}
			}
		}()
	})
	return c.readCh
}

// promptLine is the default terminal input: print the prompt, read one line,
// re-prompt on empty input. Cancellation aborts immediately even while the
// read is blocked, so an interrupt mid-prompt still reaches finalization.
func (c *Controller) promptLine(ctx context.Context, prompt string) (string, error) {
	if c.in == nil {
		return "", errors.New("no input source configured")
	}
	ch := c.reader()
	for {
		c.printf("%s", prompt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-ch:
			if !ok {
				return "", io.EOF
			}
			line := strings.TrimSpace(res.line)
			if line != "" {
				return line, nil
			}
			if res.err != nil {
				return "", res.err
			}
			// Empty input is tolerated by re-prompting.
		}
	}
}

func (c *Controller) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// normalizeInputErr maps interrupt-style failures to a graceful stop.
func (c *Controller) normalizeInputErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		c.printf("\n程序被用户中断\n")
		return nil
	}
	return err
}
