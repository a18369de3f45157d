// Package stdio implements the jsonrpc.Transport contract over the
// process's own stdin/stdout, newline-delimited per spec §4.2: the
// framing the teacher's pkg/transport.StdioTransport builds with manual
// brace-counting, but here driven by the session engine's async
// Messages/StateChanges/Errors channels instead of a blocking
// ReadRequest/WriteResponse pair.
package stdio

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
)

// Transport is a jsonrpc.Transport over stdin/stdout. Construct one per
// process; Connect starts the background read loop.
type Transport struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	writer  *bufio.Writer

	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error

	closeOnce sync.Once
	done      chan struct{}
}

// New builds a Transport over os.Stdin/os.Stdout.
func New() *Transport {
	return newWith(os.Stdin, os.Stdout)
}

func newWith(in io.Reader, out io.Writer) *Transport {
	return &Transport{
		in:           in,
		out:          out,
		writer:       bufio.NewWriter(out),
		messages:     make(chan *jsonrpc.Message, 16),
		stateChanges: make(chan jsonrpc.State, 4),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.stateChanges <- jsonrpc.StateConnected
	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := jsonrpc.Decode(line)
		if err != nil {
			logger.Warn("stdio: discarding unparsable line", err)
			select {
			case t.errors <- err:
			case <-t.done:
				return
			}
			continue
		}
		select {
		case t.messages <- msg:
		case <-t.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case t.errors <- err:
		case <-t.done:
		}
	}
	select {
	case t.stateChanges <- jsonrpc.StateDisconnected:
	case <-t.done:
	}
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.stateChanges <- jsonrpc.StateClosed
	})
	return nil
}

func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

func (t *Transport) Messages() <-chan *jsonrpc.Message { return t.messages }
func (t *Transport) StateChanges() <-chan jsonrpc.State { return t.stateChanges }
func (t *Transport) Errors() <-chan error                { return t.errors }
