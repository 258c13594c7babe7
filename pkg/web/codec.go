// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package web

import (
	"fmt"

	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/fxamacker/cbor/v2"
)

// FrameKind identifies the payload of a stream message
type FrameKind uint8

const (
	FrameState FrameKind = 0x00
	FrameStats FrameKind = 0x01
)

func (k FrameKind) String() string {
	switch k {
	case FrameState:
		return "STATE"
	case FrameStats:
		return "STATS"
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(k))
}

// Frame is one decoded stream message. Only the field matching Kind is set.
type Frame struct {
	Kind  FrameKind
	State rotel.Snapshot
	Stats rotel.StatsSnapshot
}

// Stream messages are CBOR arrays: [kind, payload]
type envelope struct {
	_       struct{} `cbor:",toarray"`
	Kind    uint8
	Payload cbor.RawMessage
}

func encode(kind FrameKind, payload interface{}) ([]byte, error) {
	body, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return cbor.Marshal(envelope{Kind: uint8(kind), Payload: body})
}

// EncodeState encodes a state snapshot message
func EncodeState(s rotel.Snapshot) ([]byte, error) {
	return encode(FrameState, s)
}

// EncodeStats encodes a link statistics message
func EncodeStats(s rotel.StatsSnapshot) ([]byte, error) {
	return encode(FrameStats, s)
}

// DecodeFrame parses a stream message
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty CBOR payload")
	}

	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	f := Frame{Kind: FrameKind(env.Kind)}
	var err error
	switch f.Kind {
	case FrameState:
		err = cbor.Unmarshal(env.Payload, &f.State)
	case FrameStats:
		err = cbor.Unmarshal(env.Payload, &f.Stats)
	default:
		return f, fmt.Errorf("unknown frame kind 0x%02X", env.Kind)
	}
	if err != nil {
		return f, fmt.Errorf("failed to decode %s payload: %w", f.Kind, err)
	}
	return f, nil
}
