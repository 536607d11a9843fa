package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// Methods understood by the reader bridge.
const (
	MethodConnect              = "connect"
	MethodDisconnect           = "disconnect"
	MethodQueryFeatureSet      = "queryFeatureSet"
	MethodQueryDefaultSettings = "queryDefaultSettings"
	MethodQuerySettings        = "querySettings"
	MethodApplySettings        = "applySettings"
	MethodStart                = "start"
	MethodStop                 = "stop"
	MethodReadMemory           = "readMemory"
)

// NotificationTagsReported is pushed by the bridge, without an ID, for every
// batch of tags the reader reports while inventory runs.
const NotificationTagsReported = "tagsReported"

// Request is a call from the driver to the bridge.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Message is anything the bridge sends: a response when ID is set, a
// notification when Method is set.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a failed call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// ConnectParams are the params of MethodConnect.
type ConnectParams struct {
	Address string `json:"address"`
}

// ReadMemoryResult is the result of MethodReadMemory.
type ReadMemoryResult struct {
	Data []byte `json:"data"`
}

// TagsReportedParams are the params of NotificationTagsReported.
type TagsReportedParams struct {
	Tags []rfid.RawTag `json:"tags"`
}
