package executor

import (
	"context"
	"io"
	"os/exec"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Executor
type Executor interface {
	LookPath(file string) (string, error)
	CommandContext(ctx context.Context, name string, args ...string) Command
}

//counterfeiter:generate . Command
type Command interface {
	SetDir(dir string)
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)
	Run() error
	CombinedOutput() ([]byte, error)
}

var _ Executor = BinaryFileExecutor{}

type BinaryFileExecutor struct{}

func (BinaryFileExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// CommandContext kills the process when ctx is done.
func (BinaryFileExecutor) CommandContext(ctx context.Context, name string, args ...string) Command {
	return &BinaryCommand{cmd: exec.CommandContext(ctx, name, args...)}
}

var _ Command = &BinaryCommand{}

type BinaryCommand struct {
	cmd *exec.Cmd
}

func (b *BinaryCommand) SetDir(dir string) {
	b.cmd.Dir = dir
}

func (b *BinaryCommand) SetStdout(w io.Writer) {
	b.cmd.Stdout = w
}

func (b *BinaryCommand) SetStderr(w io.Writer) {
	b.cmd.Stderr = w
}

func (b *BinaryCommand) Run() error {
	return b.cmd.Run()
}

func (b *BinaryCommand) CombinedOutput() ([]byte, error) {
	return b.cmd.CombinedOutput()
}
