package dummy

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
)

// Invocation is one recorded command.
type Invocation struct {
	Name string
	Args []string
	Dir  string
}

// CommandHandler plays the part of the binary. Anything written to stdout
// and stderr is what the caller sees.
type CommandHandler func(ctx context.Context, inv Invocation, stdout io.Writer, stderr io.Writer) error

var _ executor.Executor = &Executor{}

type Executor struct {
	mu          sync.Mutex
	Binaries    map[string]string
	Handler     CommandHandler
	invocations []Invocation
}

func NewExecutor(handler CommandHandler) *Executor {
	return &Executor{
		Binaries: map[string]string{},
		Handler:  handler,
	}
}

func (e *Executor) LookPath(file string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path, ok := e.Binaries[file]
	if !ok {
		return "", errors.Newf("executable %q not found", file)
	}

	return path, nil
}

func (e *Executor) CommandContext(ctx context.Context, name string, args ...string) executor.Command {
	return &Command{
		executor: e,
		ctx:      ctx,
		inv: Invocation{
			Name: name,
			Args: append([]string{}, args...),
		},
	}
}

func (e *Executor) Invocations() []Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Invocation{}, e.invocations...)
}

func (e *Executor) record(inv Invocation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.invocations = append(e.invocations, inv)
}

var _ executor.Command = &Command{}

type Command struct {
	executor *Executor
	ctx      context.Context
	inv      Invocation
	stdout   io.Writer
	stderr   io.Writer
}

func (c *Command) SetDir(dir string) {
	c.inv.Dir = dir
}

func (c *Command) SetStdout(w io.Writer) {
	c.stdout = w
}

func (c *Command) SetStderr(w io.Writer) {
	c.stderr = w
}

func (c *Command) Run() error {
	c.executor.record(c.inv)

	if err := c.ctx.Err(); err != nil {
		return err
	}

	stdout, stderr := c.stdout, c.stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if c.executor.Handler == nil {
		return nil
	}

	return c.executor.Handler(c.ctx, c.inv, stdout, stderr)
}

func (c *Command) CombinedOutput() ([]byte, error) {
	output := &bytes.Buffer{}
	c.stdout = output
	c.stderr = output
	err := c.Run()
	return output.Bytes(), err
}
