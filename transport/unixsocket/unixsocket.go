// Package unixsocket implements jsonrpc.Transport over a single
// net.Conn obtained from a Unix domain socket, newline-delimited exactly
// like transport/stdio. pkg/listener accepts the net.Conn and wraps
// each one in a Transport to hand to a fresh session.
package unixsocket

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
)

// Transport adapts one net.Conn (already accepted or dialed) to the
// jsonrpc.Transport contract.
type Transport struct {
	conn net.Conn

	writeMu sync.Mutex
	writer  *bufio.Writer

	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an already-established connection. Use listener.Accept (for
// servers) or net.Dial("unix", path) (for clients) to obtain conn.
func New(conn net.Conn) *Transport {
	return &Transport{
		conn:         conn,
		writer:       bufio.NewWriter(conn),
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
	scanner := bufio.NewScanner(t.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := jsonrpc.Decode(line)
		if err != nil {
			logger.Warn("unixsocket: discarding unparsable line", err)
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
	select {
	case t.stateChanges <- jsonrpc.StateDisconnected:
	case <-t.done:
	}
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
		select {
		case t.stateChanges <- jsonrpc.StateClosed:
		default:
		}
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

func (t *Transport) Messages() <-chan *jsonrpc.Message  { return t.messages }
func (t *Transport) StateChanges() <-chan jsonrpc.State { return t.stateChanges }
func (t *Transport) Errors() <-chan error               { return t.errors }
