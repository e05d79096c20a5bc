package compressor

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/program"
)

// ProgramBackend compresses by piping through an external program.
type ProgramBackend struct {
	args   []string
	runner *program.Command

	pw   *io.PipeWriter
	proc *program.Process
}

// NewProgramBackend parses cmdline and returns a backend running it.
func NewProgramBackend(cmdline string, opts ...program.Option) (*ProgramBackend, error) {
	args, err := program.ParseCommandLine(cmdline)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid compression program")
	}
	if len(args) == 0 {
		return nil, errors.New(errors.CodeInvalidConfig, "empty compression program")
	}
	return &ProgramBackend{args: args, runner: program.New(opts...)}, nil
}

func (b *ProgramBackend) Name() string {
	return "program"
}

func (b *ProgramBackend) SetOption(string, string) error {
	return errors.ErrOptionUnknown
}

// Open starts the program with its stdout connected to sink.
func (b *ProgramBackend) Open(sink io.Writer) error {
	pr, pw := io.Pipe()
	proc, err := b.runner.Start(pr, sink, b.args...)
	if err != nil {
		_ = pr.Close()
		return errors.Wrap(err, errors.CodeProgram, "cannot start compression program")
	}
	b.pw, b.proc = pw, proc

	// Unblock writers if the program exits without draining its input.
	go func() {
		err := proc.Wait()
		if err == nil {
			err = io.ErrClosedPipe
		}
		pr.CloseWithError(err)
	}()
	return nil
}

func (b *ProgramBackend) Write(p []byte) (int, error) {
	n, err := b.pw.Write(p)
	if err != nil {
		if werr := b.proc.Wait(); werr != nil {
			err = werr
		}
		return n, errors.Wrap(err, errors.CodeProgram, "compression program failed")
	}
	return n, nil
}

// Close ends the program's input and waits for it to exit.
func (b *ProgramBackend) Close() error {
	_ = b.pw.Close()
	if err := b.proc.Wait(); err != nil {
		return errors.Wrap(err, errors.CodeProgram, "compression program failed")
	}
	return nil
}
