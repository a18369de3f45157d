package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	id := NewIntID(7)
	data, err := EncodeRequest("tools/call", map[string]string{"name": "add"}, id)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, "tools/call", msg.Request.Method)
	assert.Equal(t, "7", msg.Request.ID.String())

	var params map[string]string
	require.NoError(t, json.Unmarshal(msg.Request.Params, &params))
	assert.Equal(t, "add", params["name"])
}

func TestEncodeDecodeNotificationRoundTrip(t *testing.T) {
	data, err := EncodeNotification("notifications/progress", map[string]int{"progress": 50})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindNotification, msg.Kind)
	assert.Equal(t, "notifications/progress", msg.Notification.Method)
}

func TestEncodeDecodeResultRoundTrip(t *testing.T) {
	id := NewStringID("abc")
	data, err := EncodeResult(map[string]bool{"ok": true}, id)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindResponse, msg.Kind)
	assert.Equal(t, "abc", msg.Response.ID.String())
}

func TestEncodeDecodeErrorRoundTrip(t *testing.T) {
	id := NewIntID(3)
	data, err := EncodeError(-32601, "method not found: frobnicate", nil, id)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindErrorResponse, msg.Kind)
	assert.Equal(t, -32601, msg.ErrorResp.Error.Code)
	assert.Equal(t, "3", msg.ErrorResp.ID.String())
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"1.0","method":"ping","id":1}`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeRejectsUnclassifiableShape(t *testing.T) {
	// neither method, nor result, nor error: matches nothing.
	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1}`))
	require.Error(t, err)
}

func TestIDMarshalUnmarshalPreservesStringVsInt(t *testing.T) {
	var id ID
	require.NoError(t, json.Unmarshal([]byte(`"my-id"`), &id))
	assert.Equal(t, "my-id", id.String())
	assert.False(t, id.IsNull())

	require.NoError(t, json.Unmarshal([]byte(`42`), &id))
	assert.Equal(t, "42", id.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &id))
	assert.True(t, id.IsNull())
}

func TestIDMarshalJSONReproducesOriginalWireType(t *testing.T) {
	// invariant M1: a Response/ErrorResponse must echo a Request's id
	// with the same JSON type it arrived as, not just the same value.
	var numeric ID
	require.NoError(t, json.Unmarshal([]byte(`5`), &numeric))
	data, err := json.Marshal(numeric)
	require.NoError(t, err)
	assert.Equal(t, "5", string(data), "a numeric wire id must round-trip as a JSON number, not \"5\"")

	var stringy ID
	require.NoError(t, json.Unmarshal([]byte(`"5"`), &stringy))
	data, err = json.Marshal(stringy)
	require.NoError(t, err)
	assert.Equal(t, `"5"`, string(data))

	data, err = json.Marshal(NewIntID(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))

	data, err = json.Marshal(NewStringID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(data))

	data, err = json.Marshal(NullID())
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestEncodeRequestWithIntIDProducesNumericWireID(t *testing.T) {
	data, err := EncodeRequest("tools/call", nil, NewIntID(9))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "9", string(raw["id"]), "request id must marshal as a bare JSON number")
}

func TestDecodeErrorResponseWithNullID(t *testing.T) {
	// A parse-error ErrorResponse carries a null id per JSON-RPC 2.0.
	// "id": null must decode distinctly from the id being absent
	// entirely (which would classify as a Notification's shape instead).
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`))
	require.NoError(t, err)
	require.Equal(t, KindErrorResponse, msg.Kind)
	assert.True(t, msg.ErrorResp.ID.IsNull())
	assert.Equal(t, -32700, msg.ErrorResp.Error.Code)
}

func TestNotificationHasNoID(t *testing.T) {
	data, err := EncodeNotification("notifications/cancelled", nil)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasID := raw["id"]
	assert.False(t, hasID, "notifications must never carry an id")
}
