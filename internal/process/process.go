package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/avsync/internal/logging"
)

// Default shutdown timeouts.
const (
	DefaultGracefulTimeout = 3 * time.Second
	DefaultKillTimeout     = 2 * time.Second
)

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Config describes a subprocess and the pipes it is started with.
type Config struct {
	// Name identifies the process in logs, e.g. "encoder".
	Name string
	// Launcher is prepended to Args. It is split like a shell command line,
	// so "nice -n 5 ffmpeg" is accepted. Defaults to "ffmpeg".
	Launcher string
	Args     []string

	// Stdin opens a pipe to the process's standard input.
	Stdin bool
	// ExtraInputs opens that many additional write pipes, visible to the
	// process as file descriptors 3, 4, ...
	ExtraInputs int
	// Stdout exposes standard output as a reader instead of logging it.
	Stdout bool

	// OutputLogger and Parser handle stderr (and stdout unless Stdout is set).
	OutputLogger logging.Logger
	Parser       LogParser

	GracefulTimeout time.Duration
	KillTimeout     time.Duration
}

// Process is a running subprocess with optional input and output pipes.
type Process struct {
	name   string
	cmd    *exec.Cmd
	logger logging.Logger
	output logging.Logger
	parser LogParser

	stdin     io.WriteCloser
	extra     []*os.File
	childEnds []*os.File
	stdout    *eofCloser

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu        sync.Mutex
	state     State
	startedAt time.Time
	exitErr   error
	stopping  bool

	done       chan struct{}
	outputDone sync.WaitGroup
	closeOnce  sync.Once
}

// Start launches the process described by cfg.
func Start(cfg Config, logger logging.Logger) (*Process, error) {
	launcher := cfg.Launcher
	if launcher == "" {
		launcher = "ffmpeg"
	}
	prefix, err := parseCommand(launcher)
	if err != nil {
		return nil, fmt.Errorf("parse launcher: %w", err)
	}
	if len(prefix) == 0 {
		return nil, errors.New("empty command")
	}
	args := append(prefix[1:len(prefix):len(prefix)], cfg.Args...)

	p := &Process{
		name:            cfg.Name,
		cmd:             exec.Command(prefix[0], args...),
		logger:          logger,
		output:          cfg.OutputLogger,
		parser:          cfg.Parser,
		gracefulTimeout: cfg.GracefulTimeout,
		killTimeout:     cfg.KillTimeout,
		state:           StateStarting,
		done:            make(chan struct{}),
	}
	if p.output == nil {
		p.output = logger
	}
	if p.gracefulTimeout <= 0 {
		p.gracefulTimeout = DefaultGracefulTimeout
	}
	if p.killTimeout <= 0 {
		p.killTimeout = DefaultKillTimeout
	}
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.openPipes(cfg); err != nil {
		p.closeInputs()
		p.closeChildEnds()
		p.closeStdout()
		return nil, err
	}

	if err := p.cmd.Start(); err != nil {
		p.closeInputs()
		p.closeChildEnds()
		p.closeStdout()
		p.setState(StateError, err)
		logger.Error("Failed to start process", "name", p.name, "error", err, "command", p.CommandLine())
		return nil, err
	}
	p.closeChildEnds()

	p.mu.Lock()
	p.state = StateRunning
	p.startedAt = time.Now()
	p.mu.Unlock()
	logger.Info("Process started", "name", p.name, "pid", p.cmd.Process.Pid, "command", p.CommandLine())

	go p.wait()
	return p, nil
}

func (p *Process) openPipes(cfg Config) error {
	if cfg.Stdin {
		w, err := p.cmd.StdinPipe()
		if err != nil {
			return err
		}
		p.stdin = w
	}

	for i := 0; i < cfg.ExtraInputs; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return err
		}
		p.cmd.ExtraFiles = append(p.cmd.ExtraFiles, r)
		p.extra = append(p.extra, w)
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return err
	}
	p.outputDone.Add(1)
	go func() {
		defer p.outputDone.Done()
		p.streamOutput(stderr, "stderr")
	}()

	if cfg.Stdout {
		// A plain pipe rather than StdoutPipe: Wait must not close it while
		// the owner is still draining buffered output.
		r, w, err := os.Pipe()
		if err != nil {
			return err
		}
		p.cmd.Stdout = w
		p.childEnds = append(p.childEnds, w)
		p.stdout = &eofCloser{f: r}
		return nil
	}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	p.outputDone.Add(1)
	go func() {
		defer p.outputDone.Done()
		p.streamOutput(stdout, "stdout")
	}()
	return nil
}

// closeChildEnds releases the parent's copies of the pipe ends handed to the child.
func (p *Process) closeChildEnds() {
	for _, f := range p.cmd.ExtraFiles {
		f.Close()
	}
	for _, f := range p.childEnds {
		f.Close()
	}
}

// eofCloser closes the underlying file once a read reports EOF or an error.
type eofCloser struct {
	f    *os.File
	once sync.Once
}

func (r *eofCloser) Read(b []byte) (int, error) {
	n, err := r.f.Read(b)
	if err != nil {
		r.Close()
	}
	return n, err
}

func (r *eofCloser) Close() error {
	var err error
	r.once.Do(func() { err = r.f.Close() })
	return err
}

// closeInputs closes every pipe the parent writes to, signalling EOF.
func (p *Process) closeInputs() {
	p.closeOnce.Do(func() {
		if p.stdin != nil {
			p.stdin.Close()
		}
		for _, w := range p.extra {
			w.Close()
		}
	})
}

func (p *Process) closeStdout() {
	if p.stdout != nil {
		p.stdout.Close()
	}
}

func (p *Process) wait() {
	p.outputDone.Wait()
	err := p.cmd.Wait()
	p.closeInputs()

	p.mu.Lock()
	stopping := p.stopping
	if err != nil && !stopping {
		p.state = StateError
	} else {
		p.state = StateIdle
	}
	p.exitErr = err
	p.mu.Unlock()

	if stopping {
		p.logger.Info("Process stopped", "name", p.name, "exit_code", exitCodeFromError(err))
	} else {
		p.logger.Warn("Process exited", "name", p.name, "exit_code", exitCodeFromError(err), "error", err)
	}
	close(p.done)
}

// Name returns the configured process name.
func (p *Process) Name() string { return p.name }

// CommandLine returns the command as it was executed.
func (p *Process) CommandLine() string {
	return strings.Join(p.cmd.Args, " ")
}

// Stdin returns the standard input pipe, or nil if none was requested.
func (p *Process) Stdin() io.Writer {
	if p.stdin == nil {
		return nil
	}
	return p.stdin
}

// ExtraInput returns the writer for file descriptor 3+i in the child.
func (p *Process) ExtraInput(i int) io.Writer {
	if i < 0 || i >= len(p.extra) {
		return nil
	}
	return p.extra[i]
}

// Stdout returns standard output, or nil unless Config.Stdout was set.
func (p *Process) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.name,
		State:     p.state,
		StartedAt: p.startedAt,
		LastError: p.exitErr,
	}
	if p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Stop closes the input pipes so the process can flush and exit on its own,
// then escalates to SIGINT and finally SIGKILL. It returns the exit code.
func (p *Process) Stop() int {
	p.mu.Lock()
	p.stopping = true
	if p.state == StateRunning {
		p.state = StateStopping
	}
	p.mu.Unlock()

	p.closeInputs()

	select {
	case <-p.done:
		return exitCodeFromError(p.Err())
	case <-time.After(p.gracefulTimeout / 2):
	}

	p.sendStopSignal()
	return p.waitForExit(p.gracefulTimeout / 2)
}

func (p *Process) setState(s State, err error) {
	p.mu.Lock()
	p.state = s
	p.exitErr = err
	p.mu.Unlock()
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd.Process == nil {
		return
	}
	p.logger.Debug("Sending SIGINT to process", "name", p.name, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "name", p.name, "error", err)
	}
}

// waitForExit waits for the process to exit, force-killing it after timeout.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return exitCodeFromError(p.Err())
	case <-time.After(timeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "name", p.name, "timeout", timeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "name", p.name, "error", err)
	}
	p.closeStdout()
	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "name", p.name)
	}
	return 137
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput logs each line of reader at the level the parser finds.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		level, msg := "info", scanner.Text()
		if p.parser != nil {
			level, msg = p.parser(msg)
		}

		switch level {
		case "panic", "fatal", "error":
			p.output.Error(msg, "process", p.name)
		case "warning":
			p.output.Warn(msg, "process", p.name)
		case "info":
			p.output.Info(msg, "process", p.name)
		default:
			p.output.Debug(msg, "process", p.name)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("Error reading output", "name", p.name, "source", source, "error", err)
	}
}

// parseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	return args, nil
}
