package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/tickspeak/internal/audio"
)

// PiperSampleRate is the output rate of most piper voices.
const PiperSampleRate = 22050

// PiperProvider streams speech from a piper subprocess started per utterance.
type PiperProvider struct {
	// argv is the parsed command line, without model arguments
	argv []string
	// modelDirs are searched in order for <voice>.onnx
	modelDirs []string
	// inputRate is the rate piper writes; output is resampled to sampleRate
	inputRate  int
	sampleRate int
	blockSize  int
	logger     *log.Logger
}

// NewPiperProvider checks that the piper command resolves and prepares the
// model search path.
func NewPiperProvider(cfg Config, logger *log.Logger) (*PiperProvider, error) {
	command := cfg.Command
	if strings.TrimSpace(command) == "" {
		command = "piper"
	}

	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, &EngineError{
			Engine:  EnginePiper,
			Type:    "config",
			Message: fmt.Sprintf("invalid command %q", command),
			Cause:   err,
		}
	}
	if len(argv) == 0 {
		return nil, &EngineError{Engine: EnginePiper, Type: "config", Message: "empty command"}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &EngineError{
			Engine:  EnginePiper,
			Type:    "dependency",
			Message: "piper binary not found. Please install piper TTS: https://github.com/rhasspy/piper",
			Cause:   err,
		}
	}
	argv[0] = path

	inputRate := cfg.InputSampleRate
	if inputRate <= 0 {
		inputRate = PiperSampleRate
	}

	return &PiperProvider{
		argv:       argv,
		modelDirs:  modelSearchPath(cfg.ModelDir),
		inputRate:  inputRate,
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		logger:     logger,
	}, nil
}

// modelSearchPath lists the configured directory first, then the usual
// install locations.
func modelSearchPath(configured string) []string {
	home, _ := homedir.Dir()
	dirs := []string{}
	if configured != "" {
		if expanded, err := homedir.Expand(configured); err == nil {
			configured = expanded
		}
		dirs = append(dirs, configured)
	}
	return append(dirs,
		filepath.Join(home, ".local/share/piper-voices"),
		"/usr/share/piper-voices",
		"/usr/local/share/piper-voices",
		filepath.Join(home, ".config/piper/voices"),
		"/opt/piper/voices",
	)
}

// Name returns the engine name.
func (p *PiperProvider) Name() string { return EnginePiper }

// ResolveModel maps a voice name or model path to an .onnx file on disk.
func (p *PiperProvider) ResolveModel(voice string) (string, error) {
	if voice == "" {
		return "", &EngineError{Engine: EnginePiper, Type: "model", Message: "no voice configured"}
	}

	if strings.HasSuffix(voice, ".onnx") || strings.ContainsRune(voice, os.PathSeparator) {
		path, err := homedir.Expand(voice)
		if err != nil {
			path = voice
		}
		if _, err := os.Stat(path); err != nil {
			return "", &EngineError{
				Engine:  EnginePiper,
				Type:    "model",
				Message: fmt.Sprintf("model file not found: %s", path),
				Cause:   err,
			}
		}
		return path, nil
	}

	for _, dir := range p.modelDirs {
		path := filepath.Join(dir, voice+".onnx")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", &EngineError{
		Engine: EnginePiper,
		Type:   "model",
		Message: fmt.Sprintf(`voice %q not found. Please download a model from:
https://github.com/rhasspy/piper/releases
and place it in ~/.local/share/piper-voices/`, voice),
	}
}

// Synthesize starts piper with the text on stdin and streams its raw output.
func (p *PiperProvider) Synthesize(ctx context.Context, text, voice string) (Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	model, err := p.ResolveModel(voice)
	if err != nil {
		return nil, err
	}

	args := append([]string{}, p.argv[1:]...)
	args = append(args, "--model", model, "--output-raw")
	if cfgPath := model + ".json"; fileExists(cfgPath) {
		args = append(args, "--config", cfgPath)
	}

	cmd := exec.CommandContext(ctx, p.argv[0], args...)

	// Set stdin before starting the process
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &EngineError{
			Engine:  EnginePiper,
			Type:    "process",
			Message: "failed to create stdout pipe",
			Cause:   err,
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &EngineError{
			Engine:  EnginePiper,
			Type:    "process",
			Message: "failed to start piper process",
			Cause:   err,
		}
	}

	p.logger.Debug("Started piper", "pid", cmd.Process.Pid, "voice", voice, "chars", len(text))

	return &piperStream{
		ctx:        ctx,
		cmd:        cmd,
		stdout:     stdout,
		stderr:     &stderr,
		raw:        make([]byte, p.blockSize*2),
		inputRate:  p.inputRate,
		outputRate: p.sampleRate,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type piperStream struct {
	ctx        context.Context
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     *bytes.Buffer
	raw        []byte
	inputRate  int
	outputRate int

	done    bool
	doneErr error

	closeOnce sync.Once
}

func (s *piperStream) Next() (audio.Chunk, error) {
	if s.done {
		return nil, s.doneErr
	}

	n, err := io.ReadFull(s.stdout, s.raw)
	if n >= 2 {
		chunk := Resample(decodeS16LE(s.raw[:n]), s.inputRate, s.outputRate)
		if err != nil {
			s.finish(err)
		}
		return chunk, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	s.finish(err)
	return nil, s.doneErr
}

// finish reaps the process and records the terminal result of the stream.
func (s *piperStream) finish(readErr error) {
	s.done = true
	waitErr := s.cmd.Wait()

	switch {
	case s.ctx.Err() != nil:
		s.doneErr = s.ctx.Err()
	case waitErr != nil:
		msg := strings.TrimSpace(s.stderr.String())
		if msg == "" {
			msg = "synthesis failed"
		}
		s.doneErr = &EngineError{Engine: EnginePiper, Type: "synthesis", Message: msg, Cause: waitErr}
	case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
		s.doneErr = io.EOF
	default:
		s.doneErr = &EngineError{
			Engine:  EnginePiper,
			Type:    "synthesis",
			Message: "failed to read audio data",
			Cause:   readErr,
		}
	}
}

func (s *piperStream) Close() error {
	s.closeOnce.Do(func() {
		if s.done {
			return
		}
		// Abandoned mid-utterance.
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.stdout.Close()
		_ = s.cmd.Wait()
		s.done = true
		s.doneErr = io.EOF
	})
	return nil
}
