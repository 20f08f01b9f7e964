package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/caseflow/state"
)

// Codec serializes WorkflowState for backends that store opaque bytes.
// Decoders ignore unknown fields so older readers accept newer snapshots.
type Codec interface {
	// Encode serializes a state to bytes.
	Encode(st *state.WorkflowState) ([]byte, error)

	// Decode deserializes bytes into a state.
	Decode(data []byte) (*state.WorkflowState, error)

	// Name returns the codec identifier ("json" or "msgpack").
	Name() string
}

// CodecName constants for codec selection.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec encodes state as JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(st *state.WorkflowState) ([]byte, error) {
	return json.Marshal(st)
}

func (JSONCodec) Decode(data []byte) (*state.WorkflowState, error) {
	var st state.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("checkpoint: decode json: %w", err)
	}
	return normalize(&st), nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes state as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(st *state.WorkflowState) ([]byte, error) {
	return msgpack.Marshal(st)
}

func (MsgpackCodec) Decode(data []byte) (*state.WorkflowState, error) {
	var st state.WorkflowState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("checkpoint: decode msgpack: %w", err)
	}
	return normalize(&st), nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

// normalize fills fields that snapshots written before schema versioning,
// or with empty collections elided, leave unset.
func normalize(st *state.WorkflowState) *state.WorkflowState {
	if st.SchemaVersion == 0 {
		st.SchemaVersion = 1
	}
	if st.StageOutputs == nil {
		st.StageOutputs = make(map[string]state.Payload)
	}
	if st.Errors == nil {
		st.Errors = []state.StageError{}
	}
	return st
}
