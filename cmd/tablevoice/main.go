package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tablevoice/tablevoice/internal/flow"
	"github.com/tablevoice/tablevoice/internal/genai"
	"github.com/tablevoice/tablevoice/internal/journal"
	"github.com/tablevoice/tablevoice/internal/lockfile"
	"github.com/tablevoice/tablevoice/internal/session"
	"github.com/tablevoice/tablevoice/internal/store"
	"github.com/tablevoice/tablevoice/internal/util"
	"github.com/tablevoice/tablevoice/internal/voice"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for tablevoice state data
	DefaultStateDir = "/var/lib/tablevoice"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "tablevoice.db"
	// DefaultTranscriptFileName is the per-session dialogue log filename
	DefaultTranscriptFileName = "ai_generated_log.txt"
	// DefaultReflectionFileName is the cross-session reflection log filename
	DefaultReflectionFileName = "chatbot_reflection_log.txt"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Read-only inspection modes exit before touching the lock.
	if *flags.showReflections {
		os.Exit(runShowReflections(flags))
	}
	if *flags.showBookings {
		os.Exit(runShowBookings(flags))
	}
	if *flags.checkSetup {
		os.Exit(runCheckSetup(flags))
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Only one session may use a state directory at a time.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("tablevoice session failed", "error", err)
		fmt.Fprintf(os.Stderr, "会话因服务错误终止: %v\n", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("tablevoice exited successfully")
}

// run wires the session dependencies and executes one reservation session.
func run(ctx context.Context, flags Flags) error {
	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	transcript := journal.NewTranscriptLog(transcriptPath(flags))
	reflections := journal.NewReflectionStore(reflectionPath(flags))
	engine := flow.NewEngine(client, reflections)

	sessionOpts := []session.Option{
		session.WithIO(os.Stdin, os.Stdout),
		session.WithMaxReflectionEntries(*flags.maxReflections),
	}

	archive, err := buildArchive(flags)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
		sessionOpts = append(sessionOpts, session.WithArchive(archive))
	}

	if *flags.voiceOut {
		synth, err := voice.NewGoogleSynthesizer(ctx, buildVoiceOptions(flags)...)
		if err != nil {
			// Voice output is best-effort: run the session without it.
			slog.Warn("Voice synthesis unavailable, continuing text-only", "error", err)
		} else {
			sessionOpts = append(sessionOpts, session.WithSynthesizer(synth))
		}
	}

	if *flags.voiceIn {
		input, err := buildVoiceInput(flags)
		if err != nil {
			slog.Warn("Voice input unavailable, falling back to keyboard", "error", err)
		} else {
			sessionOpts = append(sessionOpts, session.WithUserInput(input))
		}
	}

	controller := session.NewController(engine, transcript, reflections, sessionOpts...)
	return controller.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	GeminiKey      string
	TTSModel       string
	MaxReflections int
	VoiceEnabled   bool
	VoiceInput     bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	openaiBaseURL   *string
	model           *string
	geminiKey       *string
	ttsModel        *string
	maxReflections  *int
	voiceOut        *bool
	voiceIn         *bool
	checkSetup      *bool
	showReflections *bool
	showBookings    *bool
}

// initializeLogger sets up structured logging on stderr so log lines never
// interleave with the conversation on stdout.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TABLEVOICE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("TABLEVOICE_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		TTSModel:       os.Getenv("TTS_MODEL_ID"),
		MaxReflections: util.ParseIntEnv("MAX_REFLECTION_ENTRIES", session.DefaultMaxReflectionEntries),
		VoiceEnabled:   util.ParseBoolEnv("VOICE_ENABLED", false),
		VoiceInput:     util.ParseBoolEnv("VOICE_INPUT", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TABLEVOICE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"TABLEVOICE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL", config.OpenAIBaseURL,
		"OPENAI_MODEL", config.OpenAIModel,
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"TTS_MODEL_ID", config.TTSModel,
		"MAX_REFLECTION_ENTRIES", config.MaxReflections,
		"VOICE_ENABLED", config.VoiceEnabled,
		"VOICE_INPUT", config.VoiceInput)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for tablevoice data (overrides $TABLEVOICE_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "booking archive DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "chat completion API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:   flag.String("openai-base-url", config.OpenAIBaseURL, "chat completion base URL (overrides $OPENAI_BASE_URL)"),
		model:           flag.String("model", config.OpenAIModel, "chat completion model (overrides $OPENAI_MODEL)"),
		geminiKey:       flag.String("gemini-api-key", config.GeminiKey, "Gemini API key for speech synthesis (overrides $GEMINI_API_KEY)"),
		ttsModel:        flag.String("tts-model", config.TTSModel, "text-to-speech model ID (overrides $TTS_MODEL_ID)"),
		maxReflections:  flag.Int("max-reflections", config.MaxReflections, "reflection entries kept before distillation (overrides $MAX_REFLECTION_ENTRIES)"),
		voiceOut:        flag.Bool("voice", config.VoiceEnabled, "speak merchant-directed messages aloud (overrides $VOICE_ENABLED)"),
		voiceIn:         flag.Bool("voice-input", config.VoiceInput, "capture user input from the microphone (overrides $VOICE_INPUT)"),
		checkSetup:      flag.Bool("check-setup", false, "verify configuration and exit"),
		showReflections: flag.Bool("show-reflections", false, "print stored reflections and exit"),
		showBookings:    flag.Bool("show-bookings", false, "print archived bookings and exit"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"baseURL", *flags.openaiBaseURL,
		"model", *flags.model,
		"geminiKeySet", *flags.geminiKey != "",
		"ttsModel", *flags.ttsModel,
		"maxReflections", *flags.maxReflections,
		"voice", *flags.voiceOut,
		"voiceInput", *flags.voiceIn)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	logDir := filepath.Join(*flags.stateDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		slog.Error("Failed to create log directory", "error", err, "log_dir", logDir)
		return err
	}
	return nil
}

func transcriptPath(flags Flags) string {
	return filepath.Join(*flags.stateDir, "logs", DefaultTranscriptFileName)
}

func reflectionPath(flags Flags) string {
	return filepath.Join(*flags.stateDir, "logs", DefaultReflectionFileName)
}

func archiveDSN(flags Flags) string {
	if *flags.dbDSN != "" {
		return *flags.dbDSN
	}
	return filepath.Join(*flags.stateDir, DefaultDBFileName)
}

// buildGenAIOptions constructs completion client configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildVoiceOptions constructs speech synthesis configuration options
func buildVoiceOptions(flags Flags) []voice.Option {
	var voiceOpts []voice.Option
	if *flags.geminiKey != "" {
		voiceOpts = append(voiceOpts, voice.WithAPIKey(*flags.geminiKey))
	}
	if *flags.ttsModel != "" {
		voiceOpts = append(voiceOpts, voice.WithTTSModel(*flags.ttsModel))
	}
	return voiceOpts
}

// buildArchive opens the booking archive for the configured DSN.
func buildArchive(flags Flags) (store.Store, error) {
	dsn := archiveDSN(flags)
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL archive", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite archive", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildVoiceInput assembles the record-and-transcribe input pipeline.
func buildVoiceInput(flags Flags) (session.InputFunc, error) {
	recorder, err := voice.NewRecorder(
		util.ParseFloatEnv("SILENCE_THRESHOLD", voice.DefaultSilenceThreshold),
		voice.DefaultSilenceDuration)
	if err != nil {
		return nil, err
	}
	transcriber, err := voice.NewWhisperTranscriber(*flags.openaiKey)
	if err != nil {
		return nil, err
	}
	printf := func(format string, args ...any) { fmt.Fprintf(os.Stdout, format, args...) }
	return voice.Dictation(recorder, transcriber, printf), nil
}

// runCheckSetup verifies configuration and reports what is usable.
func runCheckSetup(flags Flags) int {
	ok := true

	if *flags.openaiKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		fmt.Println("✗ 缺少对话模型密钥 (OPENAI_API_KEY)")
		ok = false
	} else {
		fmt.Println("✓ 对话模型密钥已配置")
	}

	if *flags.voiceOut {
		if *flags.geminiKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
			fmt.Println("✗ 语音输出已启用但缺少 GEMINI_API_KEY")
			ok = false
		} else {
			fmt.Println("✓ 语音输出密钥已配置")
		}
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		fmt.Printf("✗ 状态目录不可写: %v\n", err)
		ok = false
	} else {
		fmt.Printf("✓ 状态目录可用: %s\n", *flags.stateDir)
	}

	archive, err := buildArchive(flags)
	if err != nil {
		fmt.Printf("✗ 预定档案不可用: %v\n", err)
		ok = false
	} else {
		archive.Close()
		fmt.Println("✓ 预定档案可用")
	}

	if ok {
		fmt.Println("配置检查通过")
		return 0
	}
	return 1
}

// runShowReflections prints the stored reflection entries.
func runShowReflections(flags Flags) int {
	reflections := journal.NewReflectionStore(reflectionPath(flags))
	entries := reflections.Entries()
	if len(entries) == 0 {
		fmt.Println("暂无反思记录")
		return 0
	}
	for _, e := range entries {
		kind := "原始"
		if e.IsRefined {
			kind = "精炼"
		}
		fmt.Printf("==== %s (%s) ====\n%s\n\n", e.Timestamp.Format("2006-01-02 15:04:05"), kind, e.Text)
	}
	return 0
}

// runShowBookings prints the archived booking summaries.
func runShowBookings(flags Flags) int {
	archive, err := buildArchive(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "预定档案不可用: %v\n", err)
		return 1
	}
	defer archive.Close()

	bookings, err := archive.ListBookings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取预定档案失败: %v\n", err)
		return 1
	}
	if len(bookings) == 0 {
		fmt.Println("暂无预定记录")
		return 0
	}
	for _, b := range bookings {
		status := "未完成"
		if b.Succeeded {
			status = "成功"
		}
		fmt.Printf("#%d [%s] %s\n  %s\n", b.ID, status, b.CreatedAt.Format("2006-01-02 15:04"), b.Summary)
	}
	return 0
}
