package protocol

import "encoding/json"

const Version = "1.0"

// Message types (observer stream).
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeHello     = "HELLO"
	TypeTick      = "TICK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Event is a loosely typed record appended to an agent while its work runs.
// Keys: "t" (tick), "type", and per-type fields.
type Event map[string]interface{}

// Event types emitted by the work engine.
const (
	EventWorkClaimed   = "WORK_CLAIMED"
	EventWorkDone      = "WORK_DONE"
	EventWorkFail      = "WORK_FAIL"
	EventWorkCanceled  = "WORK_CANCELED"
	EventWorkAbandoned = "WORK_ABANDONED"
	EventTaskFail      = "TASK_FAIL"
	EventJobDone       = "JOB_DONE"
	EventJobCanceled   = "JOB_CANCELED"
)

func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}
