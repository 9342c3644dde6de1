package surface

import (
	"encoding/json"

	"github.com/lumava/surfcast/datamodel"
)

// MessageType tags the four wire message variants sent to viewers.
type MessageType string

const (
	MsgCreateSurface    MessageType = "createSurface"
	MsgUpdateComponents MessageType = "updateComponents"
	MsgUpdateDataModel  MessageType = "updateDataModel"
	MsgDeleteSurface    MessageType = "deleteSurface"
)

// defaultCatalogID is announced with every createSurface message; viewers use
// it to select the component catalog they render from.
const defaultCatalogID = "standard"

// Message is one sync protocol frame. Which fields are populated depends on
// Type; Marshal emits only the fields the variant defines, so a data-model
// value of false, 0 or "" survives encoding.
type Message struct {
	Type       MessageType
	SurfaceID  string
	CatalogID  string
	Components []Component
	Path       string
	Value      any
}

// MarshalJSON writes the variant-specific shape.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case MsgCreateSurface:
		out["surfaceId"] = m.SurfaceID
		out["catalogId"] = m.CatalogID
	case MsgUpdateComponents:
		components := m.Components
		if components == nil {
			components = []Component{}
		}
		out["components"] = components
	case MsgUpdateDataModel:
		out["path"] = m.Path
		out["value"] = m.Value
	case MsgDeleteSurface:
		out["surfaceId"] = m.SurfaceID
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the variant-specific shape back into the struct.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       MessageType     `json:"type"`
		SurfaceID  string          `json:"surfaceId"`
		CatalogID  string          `json:"catalogId"`
		Components []Component     `json:"components"`
		Path       string          `json:"path"`
		Value      json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Type = raw.Type
	m.SurfaceID = raw.SurfaceID
	m.CatalogID = raw.CatalogID
	m.Components = raw.Components
	m.Path = raw.Path
	if raw.Value != nil {
		if err := json.Unmarshal(raw.Value, &m.Value); err != nil {
			return err
		}
	}
	return nil
}

// CreateMessage announces a surface's identity. Viewers reset their component
// and data caches on receipt.
func CreateMessage(surfaceID string) Message {
	return Message{Type: MsgCreateSurface, SurfaceID: surfaceID, CatalogID: defaultCatalogID}
}

// ComponentsMessage carries a wholesale replacement of the component tree.
func ComponentsMessage(components []Component) Message {
	return Message{Type: MsgUpdateComponents, Components: components}
}

// DataMessage carries a single path-scoped data mutation.
func DataMessage(path string, value any) Message {
	return Message{Type: MsgUpdateDataModel, Path: path, Value: value}
}

// DeleteMessage tells viewers the surface is torn down.
func DeleteMessage(surfaceID string) Message {
	return Message{Type: MsgDeleteSurface, SurfaceID: surfaceID}
}

// Replay builds the full-state join sequence for a surface: identity
// announcement, the component tree if non-empty, then one data message per
// leaf of the data model. Applying the sequence leaves a fresh viewer in the
// same state as one that received every incremental update since creation.
func Replay(st *State) []Message {
	msgs := []Message{CreateMessage(st.ID)}
	if len(st.Components) > 0 {
		msgs = append(msgs, ComponentsMessage(st.Components))
	}
	for _, leaf := range datamodel.Flatten(st.DataModel) {
		msgs = append(msgs, DataMessage(leaf.Path, leaf.Value))
	}
	return msgs
}
