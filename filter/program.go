package filter

import (
	"bytes"
	"math"

	"github.com/jmgilman/go/archive/internal/program"
	"github.com/jmgilman/go/archive/stream"
)

// ProgramBidder decodes through an external program. With a signature it
// bids only when the stream starts with it. Without one it bids the
// maximum exactly once, forcing the program onto the stream.
type ProgramBidder struct {
	Command   []string
	Signature []byte
	Runner    *program.Command

	inhibit bool
}

// NewProgramBidder parses cmdline and returns a bidder for it.
func NewProgramBidder(cmdline string, signature []byte) (*ProgramBidder, error) {
	args, err := program.ParseCommandLine(cmdline)
	if err != nil {
		return nil, err
	}
	return &ProgramBidder{Command: args, Signature: signature, Runner: program.New()}, nil
}

func (b *ProgramBidder) Name() string {
	if len(b.Command) == 0 {
		return "program"
	}
	return "program: " + b.Command[0]
}

func (b *ProgramBidder) Bid(upstream *stream.Cursor) (int, error) {
	if len(b.Signature) > 0 {
		p, err := peek(upstream, len(b.Signature))
		if err != nil {
			return 0, err
		}
		if !bytes.HasPrefix(p, b.Signature) {
			return 0, nil
		}
		return len(b.Signature) * 8, nil
	}
	if b.inhibit {
		return 0, nil
	}
	b.inhibit = true
	return math.MaxInt, nil
}

func (b *ProgramBidder) Init(upstream *stream.Cursor) (Filter, error) {
	runner := b.Runner
	if runner == nil {
		runner = program.New()
	}
	out, err := runner.Pipe(upstream, b.Command...)
	if err != nil {
		return nil, err
	}
	return newReadFilter(b.Name(), out, out.Close, upstream), nil
}
