package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// EncodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that values are gob-encodable; workflow inputs,
// outputs and signal payloads must register their concrete types.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so decoding into interface{} round-trips the
	// concrete type.
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a value produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// EncodeEvents serializes a history event batch.
func EncodeEvents(events []api.HistoryEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvents deserializes a history event batch.
func DecodeEvents(data []byte) ([]api.HistoryEvent, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var events []api.HistoryEvent
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}

// EncodeEvent serializes a single history event.
func EncodeEvent(ev api.HistoryEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent deserializes a single history event.
func DecodeEvent(data []byte) (api.HistoryEvent, error) {
	var ev api.HistoryEvent
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev)
	return ev, err
}

// Error kinds stored on an instanceRecord so a rehydrated snapshot keeps its
// error identity: errors.Is against the api sentinels and errors.As against
// *workflow.ActivityError must hold after a store round-trip.
const (
	errKindGeneric          = ""
	errKindActivity         = "activity"
	errKindNonDeterministic = "nondeterministic"
	errKindTimeout          = "timeout"
)

// sentinelError carries the persisted message while unwrapping to the
// sentinel the original error wrapped.
type sentinelError struct {
	msg  string
	base error
}

func (e *sentinelError) Error() string { return e.msg }
func (e *sentinelError) Unwrap() error { return e.base }

// instanceRecord is the gob-serializable projection of WorkflowInstance used
// by the durable stores. Err travels as a message plus a kind tag (and, for
// activity failures, the ActivityError fields).
type instanceRecord struct {
	ID       string
	RunID    string
	Type     string
	TenantID string
	Status   api.Status

	Input  []byte
	Output []byte

	ErrMsg          string
	ErrKind         string
	ErrActivityID   string
	ErrActivityName string
	ErrAttempts     int

	Waiting         *api.WaitState
	NextSeq         int64
	BufferedSignals []api.SignalDelivery
	CancelRequested bool

	SearchAttributes map[string]string

	ExecutionDeadline int64 // unix nanos; zero means none
	CreatedAt         int64
	CompletedAt       int64
}

func toRecord(inst *api.WorkflowInstance) (*instanceRecord, error) {
	input, err := EncodeValue(inst.Input)
	if err != nil {
		return nil, err
	}
	output, err := EncodeValue(inst.Output)
	if err != nil {
		return nil, err
	}
	rec := &instanceRecord{
		ID:               inst.ID,
		RunID:            inst.RunID,
		Type:             inst.Type,
		TenantID:         inst.TenantID,
		Status:           inst.Status,
		Input:            input,
		Output:           output,
		Waiting:          inst.Waiting,
		NextSeq:          inst.NextSeq,
		BufferedSignals:  inst.BufferedSignals,
		CancelRequested:  inst.CancelRequested,
		SearchAttributes: inst.SearchAttributes,
		CreatedAt:        inst.CreatedAt.UnixNano(),
	}
	if inst.Err != nil {
		rec.ErrMsg = inst.Err.Error()
		var actErr *workflow.ActivityError
		switch {
		case errors.As(inst.Err, &actErr):
			rec.ErrKind = errKindActivity
			rec.ErrActivityID = actErr.ActivityID
			rec.ErrActivityName = actErr.Name
			rec.ErrAttempts = actErr.Attempts
			rec.ErrMsg = actErr.Message
		case errors.Is(inst.Err, api.ErrNonDeterministic):
			rec.ErrKind = errKindNonDeterministic
		case errors.Is(inst.Err, api.ErrExecutionTimeout):
			rec.ErrKind = errKindTimeout
		}
	}
	if !inst.ExecutionDeadline.IsZero() {
		rec.ExecutionDeadline = inst.ExecutionDeadline.UnixNano()
	}
	if !inst.CompletedAt.IsZero() {
		rec.CompletedAt = inst.CompletedAt.UnixNano()
	}
	return rec, nil
}

func fromRecord(rec *instanceRecord) (*api.WorkflowInstance, error) {
	input, err := DecodeValue(rec.Input)
	if err != nil {
		return nil, err
	}
	output, err := DecodeValue(rec.Output)
	if err != nil {
		return nil, err
	}
	inst := &api.WorkflowInstance{
		ID:               rec.ID,
		RunID:            rec.RunID,
		Type:             rec.Type,
		TenantID:         rec.TenantID,
		Status:           rec.Status,
		Input:            input,
		Output:           output,
		Waiting:          rec.Waiting,
		NextSeq:          rec.NextSeq,
		BufferedSignals:  rec.BufferedSignals,
		CancelRequested:  rec.CancelRequested,
		SearchAttributes: rec.SearchAttributes,
	}
	switch rec.ErrKind {
	case errKindActivity:
		inst.Err = &workflow.ActivityError{
			ActivityID: rec.ErrActivityID,
			Name:       rec.ErrActivityName,
			Message:    rec.ErrMsg,
			Attempts:   rec.ErrAttempts,
		}
	case errKindNonDeterministic:
		inst.Err = &sentinelError{msg: rec.ErrMsg, base: api.ErrNonDeterministic}
	case errKindTimeout:
		inst.Err = &sentinelError{msg: rec.ErrMsg, base: api.ErrExecutionTimeout}
	default:
		if rec.ErrMsg != "" {
			inst.Err = errors.New(rec.ErrMsg)
		}
	}
	if rec.ExecutionDeadline != 0 {
		inst.ExecutionDeadline = time.Unix(0, rec.ExecutionDeadline)
	}
	if rec.CreatedAt != 0 {
		inst.CreatedAt = time.Unix(0, rec.CreatedAt)
	}
	if rec.CompletedAt != 0 {
		inst.CompletedAt = time.Unix(0, rec.CompletedAt)
	}
	return inst, nil
}

// EncodeInstance serializes the full instance record.
func EncodeInstance(inst *api.WorkflowInstance) ([]byte, error) {
	rec, err := toRecord(inst)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInstance deserializes a record produced by EncodeInstance.
func DecodeInstance(data []byte) (*api.WorkflowInstance, error) {
	var rec instanceRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}
