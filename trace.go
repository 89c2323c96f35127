package settings

import (
	"encoding/json"
)

// Trace captures, for one key and property, what every flattened stack level
// holds and which level produced the effective value.
type Trace struct {
	Key      string       `json:"key"`
	Property string       `json:"property"`
	Winner   int          `json:"winner"`
	Levels   []Provenance `json:"levels"`
}

// Provenance details how one container contributed to a traced lookup.
type Provenance struct {
	Level         int    `json:"level"`
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name,omitempty"`
	Kind          string `json:"kind"`
	Value         any    `json:"value,omitempty"`
	Formula       string `json:"formula,omitempty"`
	Found         bool   `json:"found"`
}

// WinningLevel returns the provenance of the level that produced the value.
func (t Trace) WinningLevel() (Provenance, bool) {
	if t.Winner < 0 || t.Winner >= len(t.Levels) {
		return Provenance{}, false
	}
	return t.Levels[t.Winner], true
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
