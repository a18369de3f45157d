package mcperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeForKindStandardRange(t *testing.T) {
	assert.Equal(t, CodeParseError, CodeForKind(KindParseError))
	assert.Equal(t, CodeInvalidRequest, CodeForKind(KindInvalidRequest))
	assert.Equal(t, CodeInvalidParams, CodeForKind(KindInvalidParams))
}

func TestCodeForKindNotFoundKindsCollapseToMethodNotFound(t *testing.T) {
	for _, k := range []Kind{KindMethodNotFound, KindToolNotFound, KindResourceNotFound, KindPromptNotFound, KindTaskNotFound} {
		assert.Equal(t, CodeMethodNotFound, CodeForKind(k), k.String())
	}
}

func TestCodeForKindMCPReservedRange(t *testing.T) {
	assert.Equal(t, CodeConnectionClosed, CodeForKind(KindConnectionClosed))
	assert.Equal(t, CodeTransportError, CodeForKind(KindTransportError))
	assert.Equal(t, CodeTimeout, CodeForKind(KindTimeout))
	assert.Equal(t, CodeURLElicitationRequired, CodeForKind(KindURLElicitationRequired))
}

func TestCodeForKindUnknownFallsBackToInternalError(t *testing.T) {
	// Kinds with no wire code of their own (cancellation, capability
	// negotiation, protocol mismatch, ...) must still produce a valid
	// wire code rather than leak a library-internal sentinel.
	for _, k := range []Kind{KindCancelled, KindNotInitialized, KindAlreadyInitialized, KindCapabilityNotSupported, KindProtocolVersionMismatch} {
		assert.Equal(t, CodeInternalError, CodeForKind(k), k.String())
	}
}

func TestKindForCodeRoundTripsThroughKnownCodes(t *testing.T) {
	known := []Kind{
		KindParseError, KindInvalidRequest, KindMethodNotFound, KindInvalidParams,
		KindInternalError, KindConnectionClosed, KindTransportError, KindTimeout,
		KindURLElicitationRequired,
	}
	for _, k := range known {
		code := CodeForKind(k)
		assert.Equal(t, k, KindForCode(code), "round trip for %s via code %d", k, code)
	}
}

func TestKindForCodeUnknownReservedCodeMapsToInternalError(t *testing.T) {
	assert.Equal(t, KindInternalError, KindForCode(-32050))
}

func TestErrorIsMatchesOnKindAlone(t *testing.T) {
	err := Wrap(KindTimeout, "waiting on peer", errors.New("deadline"))
	assert.True(t, errors.Is(err, New(KindTimeout, "")))
	assert.False(t, errors.Is(err, New(KindCancelled, "")))
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternalError, "handler failed", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestConvenienceConstructorsSetExpectedKind(t *testing.T) {
	assert.Equal(t, KindToolNotFound, ToolNotFound("add").Kind)
	assert.Equal(t, KindResourceNotFound, ResourceNotFound("test://hello").Kind)
	assert.Equal(t, KindPromptNotFound, PromptNotFound("greeting").Kind)
	assert.Equal(t, KindTaskNotFound, TaskNotFound("t1").Kind)
	assert.Equal(t, KindCancelled, Cancelled("client cancelled").Kind)
}
