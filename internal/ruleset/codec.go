// internal/ruleset/codec.go
package ruleset

import (
	"encoding/json"
	"fmt"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

// blobEnvelope wraps a module's serialized state with the game type and
// schema version, so a later schema change is detected instead of silently
// misinterpreted.
type blobEnvelope struct {
	Version int             `json:"v"`
	Game    models.GameType `json:"game"`
	State   json.RawMessage `json:"state"`
}

// EncodeBlob serializes st into the versioned persistence envelope.
func EncodeBlob(m Module, st State) ([]byte, error) {
	raw, err := m.Encode(st)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", m.Type(), err)
	}
	return json.Marshal(blobEnvelope{Version: m.Version(), Game: m.Type(), State: raw})
}

// DecodeBlob resolves the owning module from the envelope and decodes the
// inner state. Blobs with an unknown game type or version are rejected.
func DecodeBlob(reg *Registry, blob []byte) (Module, State, error) {
	var env blobEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, nil, fmt.Errorf("decode state envelope: %w", err)
	}
	m, err := reg.Get(env.Game)
	if err != nil {
		return nil, nil, err
	}
	st, err := m.Decode(env.Version, env.State)
	if err != nil {
		return nil, nil, err
	}
	return m, st, nil
}
