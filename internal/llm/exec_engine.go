package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
)

// ggufMagic opens every GGUF model file.
var ggufMagic = []byte("GGUF")

// ErrInvalidModelFile is returned when a model file is missing or not in GGUF format.
var ErrInvalidModelFile = errors.New("invalid model file")

var (
	promptEvalRe = regexp.MustCompile(`prompt eval time\s*=\s*[\d.]+\s*ms\s*/\s*(\d+)\s*tokens`)
	evalRe       = regexp.MustCompile(`\beval time\s*=\s*[\d.]+\s*ms\s*/\s*(\d+)\s*(?:runs|tokens)`)
)

var _ Engine = (*ExecEngine)(nil)

// ExecEngine runs a llama.cpp-compatible CLI for every completion. Loading a model only
// validates and remembers its path, so at most one model is ever loaded.
type ExecEngine struct {
	logger    *slog.Logger
	cliPath   string
	modelPath string
	timeout   time.Duration
	threads   int
	mu        sync.Mutex
}

// ExecEngineOption configures an ExecEngine.
type ExecEngineOption func(*ExecEngine)

// WithThreads sets the thread count passed to the CLI.
func WithThreads(n int) ExecEngineOption {
	return func(e *ExecEngine) { e.threads = n }
}

// WithTimeout bounds a completion when the caller's context has no deadline.
func WithTimeout(d time.Duration) ExecEngineOption {
	return func(e *ExecEngine) { e.timeout = d }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *slog.Logger) ExecEngineOption {
	return func(e *ExecEngine) { e.logger = l }
}

// NewExecEngine creates an engine invoking cliPath (default "llama-cli").
func NewExecEngine(cliPath string, opts ...ExecEngineOption) (*ExecEngine, error) {
	if cliPath == "" {
		cliPath = "llama-cli"
	}
	resolved, err := exec.LookPath(cliPath)
	if err != nil {
		return nil, fmt.Errorf("inference CLI not found at %s: ensure llama.cpp is installed: %w", cliPath, err)
	}

	e := &ExecEngine{cliPath: resolved, timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = common.LoggerOrDefault(e.logger)
	return e, nil
}

// LoadModel validates the GGUF header of path and makes it the loaded model,
// unloading any previous one first.
func (e *ExecEngine) LoadModel(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkGGUF(path); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.modelPath != "" && e.modelPath != path {
		e.logger.Info("unloading model", "path", e.modelPath)
		e.modelPath = ""
	}
	e.modelPath = path
	return nil
}

func checkGGUF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidModelFile, err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(ggufMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %s: short header", ErrInvalidModelFile, path)
	}
	if !bytes.Equal(header, ggufMagic) {
		return fmt.Errorf("%w: %s is not a GGUF file", ErrInvalidModelFile, path)
	}
	return nil
}

// IsModelLoaded reports whether a model is loaded.
func (e *ExecEngine) IsModelLoaded() bool {
	return e.LoadedModel() != ""
}

// LoadedModel returns the path of the loaded model, or "".
func (e *ExecEngine) LoadedModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelPath
}

// UnloadModel forgets the loaded model.
func (e *ExecEngine) UnloadModel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modelPath = ""
}

// Complete runs the CLI once and returns its output, cut at the first stop sequence.
func (e *ExecEngine) Complete(ctx context.Context, req EngineRequest) (CompletionResponse, error) {
	modelPath := e.LoadedModel()
	if modelPath == "" {
		return CompletionResponse{}, fmt.Errorf("no model loaded")
	}

	args := []string{
		"-m", modelPath,
		"-p", req.Prompt,
		"-n", strconv.Itoa(req.MaxTokens),
		"--temp", strconv.FormatFloat(req.Temperature, 'f', 2, 64),
		"--no-display-prompt",
		"-no-cnv",
	}
	if e.threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.threads))
	}
	for _, stop := range req.StopSequences {
		args = append(args, "-r", stop)
	}

	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, e.cliPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return CompletionResponse{}, fmt.Errorf("inference CLI error: %s: %w", lastLine(msg), err)
		}
		return CompletionResponse{}, fmt.Errorf("failed to execute inference CLI: %w", err)
	}

	text := truncateAtStop(strings.TrimSpace(stdout.String()), req.StopSequences)
	resp := CompletionResponse{
		Text:     text,
		Duration: time.Since(start),
	}
	resp.InputTokens, resp.OutputTokens = parseTimings(stderr.String())
	if resp.OutputTokens == 0 {
		resp.OutputTokens = len(strings.Fields(text))
	}
	return resp, nil
}

func truncateAtStop(text string, stops []string) string {
	cut := len(text)
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if idx := strings.Index(text, stop); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(text[:cut])
}

// parseTimings reads token counts from the CLI's performance report.
func parseTimings(report string) (input, output int) {
	if m := promptEvalRe.FindStringSubmatch(report); m != nil {
		input, _ = strconv.Atoi(m[1])
	}
	for _, line := range strings.Split(report, "\n") {
		if strings.Contains(line, "prompt eval time") {
			continue
		}
		if m := evalRe.FindStringSubmatch(line); m != nil {
			output, _ = strconv.Atoi(m[1])
		}
	}
	return input, output
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
