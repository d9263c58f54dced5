package main

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// lockedBuffer lets the stderr copier and GetOutput share a buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type Command struct {
	cmd                    *exec.Cmd
	name                   string
	output                 lockedBuffer
	stdout                 io.ReadCloser
	isOutputBufferDisabled bool
}

func NewCommandContext(ctx context.Context, cmd_name string, args ...string) *Command {
	cmd := exec.CommandContext(ctx, cmd_name, args...)

	c := Command{cmd: cmd, name: cmd_name + " " + strings.Join(args, " "), isOutputBufferDisabled: false}
	return &c
}

func (c *Command) Name() string {
	return c.name
}

// DisableOutputBuffer keeps stdout out of the captured output so it can be
// piped. Stderr is still captured.
func (c *Command) DisableOutputBuffer() {
	c.isOutputBufferDisabled = true
}

func (c *Command) GetStdout() (io.ReadCloser, error) {
	if c.stdout == nil {
		stdout, err := c.cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		c.stdout = stdout
	}
	return c.stdout, nil
}

func (c *Command) Start() error {
	if !c.isOutputBufferDisabled {
		c.cmd.Stdout = &c.output
	}
	c.cmd.Stderr = &c.output

	return c.cmd.Start()
}

func (c *Command) Wait() error {
	return c.cmd.Wait()
}

func (c *Command) CombinedOutput() (string, error) {
	if err := c.Start(); err != nil {
		return "", err
	}

	err := c.Wait()
	return c.GetOutput(), err
}

func (c *Command) GetOutput() string {
	return c.output.String()
}
