package state

import (
	"encoding/json"
	"fmt"
)

// checkpointVersion guards against loading checkpoints written by an
// incompatible state layout.
const checkpointVersion = 1

// Checkpoint is the serialized form of UnifiedState at a cycle boundary.
type Checkpoint struct {
	Version int          `json:"version"`
	State   UnifiedState `json:"state"`
}

// MarshalCheckpoint serializes a state snapshot for durable storage.
// Checkpoints are only taken at cycle boundaries, so the snapshot is always
// a fully merged cycle - never a partial one.
func MarshalCheckpoint(s UnifiedState) ([]byte, error) {
	data, err := json.Marshal(Checkpoint{Version: checkpointVersion, State: s})
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// RestoreCheckpoint deserializes a checkpoint back into a UnifiedState.
// Restoring and resuming with identical feed responses must reproduce the
// original trajectory.
func RestoreCheckpoint(data []byte) (UnifiedState, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return UnifiedState{}, fmt.Errorf("restore checkpoint: %w", err)
	}
	if cp.Version != checkpointVersion {
		return UnifiedState{}, fmt.Errorf("restore checkpoint: unsupported version %d", cp.Version)
	}
	s := cp.State
	if s.Social == nil {
		s.Social = make(map[string]SocialMention)
	}
	if s.Patterns == nil {
		s.Patterns = make(map[string]Pattern)
	}
	if s.Markers == nil {
		s.Markers = make(map[string]string)
	}
	return s, nil
}
