package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcperr"
)

const cancelledMethod = "notifications/cancelled"

type cancelledParams struct {
	RequestID jsonrpc.ID `json:"requestId"`
}

// run is the single event loop of spec §5: every mutation of
// pendingRequests and inFlightInbound happens here, and only here, so
// neither map needs a lock.
func (s *Session) run() {
	pendingRequests := make(map[string]*outboundReqCmd)
	inFlightInbound := make(map[string]context.CancelFunc)
	cancelledInbound := make(map[string]struct{})
	nextID := int64(1)

	defer func() {
		for id, cmd := range pendingRequests {
			cmd.resultCh <- rpcResult{err: mcperr.ConnectionClosed("session stopped")}
			close(cmd.done)
			delete(pendingRequests, id)
		}
		for id, cancel := range inFlightInbound {
			cancel()
			delete(inFlightInbound, id)
		}
		close(s.stoppedCh)
	}()

	for {
		select {
		case msg, ok := <-s.transport.Messages():
			if !ok {
				return
			}
			s.dispatchInbound(msg, pendingRequests, inFlightInbound, cancelledInbound)

		case st, ok := <-s.transport.StateChanges():
			if !ok {
				continue
			}
			if (st == jsonrpc.StateDisconnected || st == jsonrpc.StateClosed) && s.State() == StateReady {
				logger.Warn("transport lost after ready, failing pending requests")
				s.setState(StateError)
				return
			}

		case err, ok := <-s.transport.Errors():
			if !ok {
				continue
			}
			logger.Error("transport error", err)
			s.replyToTransportError(err)

		case cmd := <-s.outboundReqCh:
			s.handleOutboundReq(cmd, pendingRequests, &nextID)

		case ncmd := <-s.outboundNotifyCh:
			s.handleOutboundNotify(ncmd)

		case ccmd := <-s.cancelCh:
			s.handleCancel(ccmd, pendingRequests)

		case hd := <-s.handlerDoneCh:
			s.handleHandlerDone(hd, inFlightInbound, cancelledInbound)

		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) handleOutboundReq(cmd *outboundReqCmd, pending map[string]*outboundReqCmd, nextID *int64) {
	state := s.State()
	if !(state == StateReady || (state == StateInitializing && cmd.method == "initialize")) {
		cmd.resultCh <- rpcResult{err: mcperr.NotInitialized("cannot send " + cmd.method + " in state " + state.String())}
		close(cmd.done)
		return
	}

	id := jsonrpc.NewIntID(*nextID)
	*nextID++
	cmd.assignedID = id
	pending[id.String()] = cmd

	bytes, err := jsonrpc.EncodeRequest(cmd.method, cmd.params, id)
	if err != nil {
		delete(pending, id.String())
		cmd.resultCh <- rpcResult{err: mcperr.Wrap(mcperr.KindInternalError, "encode request", err)}
		close(cmd.done)
		return
	}
	if err := s.transport.Send(s.baseCtx, bytes); err != nil {
		delete(pending, id.String())
		cmd.resultCh <- rpcResult{err: mcperr.Wrap(mcperr.KindTransportError, "send request", err)}
		close(cmd.done)
		return
	}
}

func (s *Session) handleOutboundNotify(ncmd *outboundNotifyCmd) {
	bytes, err := jsonrpc.EncodeNotification(ncmd.method, ncmd.params)
	if err != nil {
		ncmd.errCh <- mcperr.Wrap(mcperr.KindInternalError, "encode notification", err)
		return
	}
	if err := s.transport.Send(s.baseCtx, bytes); err != nil {
		ncmd.errCh <- mcperr.Wrap(mcperr.KindTransportError, "send notification", err)
		return
	}
	ncmd.errCh <- nil
}

func (s *Session) handleCancel(cmd *outboundReqCmd, pending map[string]*outboundReqCmd) {
	id := cmd.assignedID.String()
	if _, ok := pending[id]; !ok {
		return
	}
	delete(pending, id)
	cmd.resultCh <- rpcResult{err: mcperr.Cancelled("request cancelled by caller")}
	close(cmd.done)

	bytes, err := jsonrpc.EncodeNotification(cancelledMethod, cancelledParams{RequestID: cmd.assignedID})
	if err == nil {
		_ = s.transport.Send(s.baseCtx, bytes)
	}
}

func (s *Session) handleHandlerDone(hd *handlerDoneMsg, inFlight map[string]context.CancelFunc, cancelled map[string]struct{}) {
	key := hd.id.String()
	delete(inFlight, key)
	if _, wasCancelled := cancelled[key]; wasCancelled {
		delete(cancelled, key)
		logger.Debug("suppressing response for peer-cancelled request", key)
		return
	}

	var bytes []byte
	var err error
	if hd.err != nil {
		code, msg, data := classifyHandlerError(hd.err)
		bytes, err = jsonrpc.EncodeError(code, msg, data, hd.id)
	} else {
		bytes, err = jsonrpc.EncodeResult(hd.result, hd.id)
	}
	if err != nil {
		logger.Error("failed to encode handler response", err)
		return
	}
	if err := s.transport.Send(s.baseCtx, bytes); err != nil {
		logger.Error("failed to send handler response", err)
	}
}

func classifyHandlerError(err error) (code int, message string, data any) {
	if me, ok := err.(*mcperr.Error); ok {
		return mcperr.CodeForKind(me.Kind), me.Message, me.Data
	}
	return mcperr.CodeInternalError, err.Error(), nil
}

// replyToTransportError honors spec §4.5.4 rule 4: a well-formed-wire
// but unparsable/invalid inbound message gets an ErrorResponse back,
// not just a log line. The error carries no request id, so the reply
// always carries the null id, even when the offending object had a
// readable one. Errors the transport reports for reasons other than
// message decoding (a dropped connection, a write failure) have no wire
// reply to send and are left to the logged error in run.
func (s *Session) replyToTransportError(err error) {
	var mErr *mcperr.Error
	if !errors.As(err, &mErr) {
		return
	}
	if mErr.Kind != mcperr.KindParseError && mErr.Kind != mcperr.KindInvalidRequest {
		return
	}
	bytes, encErr := jsonrpc.EncodeError(mcperr.CodeForKind(mErr.Kind), mErr.Message, nil, jsonrpc.NullID())
	if encErr != nil {
		logger.Error("failed to encode error response for decode failure", encErr)
		return
	}
	if sendErr := s.transport.Send(s.baseCtx, bytes); sendErr != nil {
		logger.Error("failed to send error response for decode failure", sendErr)
	}
}

func (s *Session) dispatchInbound(msg *jsonrpc.Message, pending map[string]*outboundReqCmd, inFlight map[string]context.CancelFunc, cancelled map[string]struct{}) {
	switch msg.Kind {
	case jsonrpc.KindRequest:
		s.dispatchInboundRequest(msg.Request, inFlight)
	case jsonrpc.KindNotification:
		s.dispatchInboundNotification(msg.Notification, inFlight, cancelled)
	case jsonrpc.KindResponse:
		s.completePending(msg.Response.ID, msg.Response.Result, nil, pending)
	case jsonrpc.KindErrorResponse:
		wireErr := msg.ErrorResp.Error
		s.completePending(msg.ErrorResp.ID, nil, mcperr.New(mcperr.KindForCode(wireErr.Code), wireErr.Message), pending)
	}
}

func (s *Session) completePending(id jsonrpc.ID, result json.RawMessage, err error, pending map[string]*outboundReqCmd) {
	key := id.String()
	cmd, ok := pending[key]
	if !ok {
		logger.Warn("discarding response for unknown or already-completed id", key)
		return
	}
	delete(pending, key)
	cmd.resultCh <- rpcResult{result: result, err: err}
	close(cmd.done)
}

func (s *Session) dispatchInboundRequest(req *jsonrpc.Request, inFlight map[string]context.CancelFunc) {
	s.handlerMu.RLock()
	h, ok := s.reqHandlers[req.Method]
	s.handlerMu.RUnlock()

	if !ok {
		bytes, _ := jsonrpc.EncodeError(mcperr.CodeMethodNotFound, "method not found: "+req.Method, nil, req.ID)
		_ = s.transport.Send(s.baseCtx, bytes)
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	inFlight[req.ID.String()] = cancel

	go func(id jsonrpc.ID, params json.RawMessage) {
		result, err := h(ctx, params)
		select {
		case s.handlerDoneCh <- &handlerDoneMsg{id: id, result: result, err: err}:
		case <-s.stoppedCh:
		}
	}(req.ID, req.Params)
}

func (s *Session) dispatchInboundNotification(n *jsonrpc.Notification, inFlight map[string]context.CancelFunc, cancelled map[string]struct{}) {
	if n.Method == cancelledMethod {
		var p cancelledParams
		if err := json.Unmarshal(n.Params, &p); err == nil {
			key := p.RequestID.String()
			if cancel, ok := inFlight[key]; ok {
				cancelled[key] = struct{}{}
				cancel()
			}
		}
		return
	}

	s.handlerMu.Lock()
	waiters := s.waiters[n.Method]
	delete(s.waiters, n.Method)
	h, hasHandler := s.notifyHandlers[n.Method]
	s.handlerMu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}

	if hasHandler {
		h(s.baseCtx, n.Params)
	}
}
