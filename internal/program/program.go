package program

import (
	"bytes"
	"context"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"unicode"
)

// Result represents the result of a buffered run.
type Result struct {
	// Stdout is the captured standard output
	Stdout []byte

	// Stderr is the captured standard error
	Stderr string

	// ExitCode is the exit code returned by the program
	ExitCode int
}

// Command runs external programs with a fixed configuration.
type Command struct {
	config *config
}

// New creates a new Command with the given options.
func New(opts ...Option) *Command {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Command{config: cfg}
}

// stderrCapture collects stderr. The os/exec copier writes from its own
// goroutine.
type stderrCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *stderrCapture) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *stderrCapture) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (c *Command) build(args []string) (*osexec.Cmd, context.CancelFunc, error) {
	if len(args) == 0 {
		return nil, nil, &ProgramError{
			Command:  args,
			ExitCode: -1,
			Err:      osexec.ErrNotFound,
		}
	}

	ctx, cancel := c.config.ctx, context.CancelFunc(func() {})
	if c.config.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.config.timeout)
	}

	cmd := osexec.CommandContext(ctx, args[0], args[1:]...)
	if c.config.dir != "" {
		cmd.Dir = c.config.dir
	}
	if c.config.inheritEnv {
		cmd.Env = os.Environ()
	}
	for k, v := range c.config.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd, cancel, nil
}

func exitCode(cmd *osexec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// Run feeds stdin to the program and returns its captured output.
func (c *Command) Run(stdin io.Reader, args ...string) (*Result, error) {
	cmd, cancel, err := c.build(args)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var stdout bytes.Buffer
	stderr := &stderrCapture{}
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd),
	}
	if err != nil {
		return result, &ProgramError{
			Command:  args,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}
	return result, nil
}

// Process is a started program.
type Process struct {
	cmd    *osexec.Cmd
	args   []string
	stderr *stderrCapture
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// Start runs the program with the given stdin and stdout and returns
// without waiting for it to exit.
func (c *Command) Start(stdin io.Reader, stdout io.Writer, args ...string) (*Process, error) {
	cmd, cancel, err := c.build(args)
	if err != nil {
		return nil, err
	}
	p := &Process{cmd: cmd, args: args, stderr: &stderrCapture{}, cancel: cancel}
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &ProgramError{Command: args, ExitCode: -1, Err: err}
	}
	return p, nil
}

// Wait waits for the program to exit. It is safe to call more than once.
func (p *Process) Wait() error {
	p.once.Do(func() {
		defer p.cancel()
		if err := p.cmd.Wait(); err != nil {
			p.err = &ProgramError{
				Command:  p.args,
				ExitCode: exitCode(p.cmd),
				Stderr:   p.stderr.String(),
				Err:      err,
			}
		}
	})
	return p.err
}

// Kill stops the program.
func (p *Process) Kill() {
	p.cancel()
}

// pipeReader is the stdout of a program started by Pipe.
type pipeReader struct {
	io.ReadCloser
	proc *Process
	eof  bool
}

// Read returns io.EOF only after the program exited successfully.
func (r *pipeReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == io.EOF {
		r.eof = true
		if werr := r.proc.Wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Close stops reading. A program that has not finished is killed and its
// exit status is ignored.
func (r *pipeReader) Close() error {
	if !r.eof {
		r.proc.Kill()
		_ = r.ReadCloser.Close()
		_ = r.proc.Wait()
		return nil
	}
	closeErr := r.ReadCloser.Close()
	if err := r.proc.Wait(); err != nil {
		return err
	}
	return closeErr
}

// Pipe starts the program reading stdin and returns its stdout.
// Closing the returned reader reaps the program.
func (c *Command) Pipe(stdin io.Reader, args ...string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	proc, err := c.Start(stdin, pw, args...)
	if err != nil {
		return nil, err
	}
	go func() {
		pw.CloseWithError(proc.Wait())
	}()
	return &pipeReader{ReadCloser: pr, proc: proc}, nil
}

// ParseCommandLine splits a command line into arguments. Single and double
// quotes group words and a backslash escapes the next character.
func ParseCommandLine(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, &ProgramError{Command: []string{line}, ExitCode: -1, Err: errUnterminated}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
