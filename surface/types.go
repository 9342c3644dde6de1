package surface

import (
	"encoding/json"
	"fmt"
	"time"
)

// SizePreset names a fixed width/height profile for a surface.
type SizePreset string

const (
	PresetTV1080p SizePreset = "tv_1080p"
	PresetTV4K    SizePreset = "tv_4k"
	PresetPhone   SizePreset = "phone"
	PresetTablet  SizePreset = "tablet"
	PresetSquare  SizePreset = "square"
	PresetAuto    SizePreset = "auto"
	PresetCustom  SizePreset = "custom"
)

// ScaleMode controls how rendered content maps onto the surface dimensions.
type ScaleMode string

const (
	ScaleFit     ScaleMode = "fit"
	ScaleFill    ScaleMode = "fill"
	ScaleStretch ScaleMode = "stretch"
	ScaleNone    ScaleMode = "none"
)

// presetDimensions maps each fixed preset to its pixel dimensions.
// auto and custom carry no intrinsic dimensions.
var presetDimensions = map[SizePreset][2]int{
	PresetTV1080p: {1920, 1080},
	PresetTV4K:    {3840, 2160},
	PresetPhone:   {390, 844},
	PresetTablet:  {1024, 768},
	PresetSquare:  {1080, 1080},
}

// Size describes the target dimensions of a surface. Width and Height are nil
// for the auto preset and for custom sizes where the caller left them unset.
type Size struct {
	Width     *int       `json:"width,omitempty"`
	Height    *int       `json:"height,omitempty"`
	Preset    SizePreset `json:"preset"`
	ScaleMode ScaleMode  `json:"scale_mode"`
}

// SizeFromPreset resolves a preset name into a concrete Size.
func SizeFromPreset(preset SizePreset) (Size, error) {
	s := Size{Preset: preset, ScaleMode: ScaleFit}
	switch preset {
	case PresetAuto, PresetCustom:
		return s, nil
	}
	dims, ok := presetDimensions[preset]
	if !ok {
		return Size{}, fmt.Errorf("%w: %q", ErrSizePreset, preset)
	}
	w, h := dims[0], dims[1]
	s.Width, s.Height = &w, &h
	return s, nil
}

// ParsePreset validates a preset string.
func ParsePreset(name string) (SizePreset, error) {
	p := SizePreset(name)
	switch p {
	case PresetTV1080p, PresetTV4K, PresetPhone, PresetTablet, PresetSquare, PresetAuto, PresetCustom:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrSizePreset, name)
}

// Component is one node of a surface's UI tree. ID must be unique within the
// surface. Beyond the declared fields, arbitrary attributes are preserved
// verbatim in Extra and round-trip through JSON unchanged.
type Component struct {
	ID       string
	Type     string // the "component" type tag, e.g. "Text", "Image"
	Children []string
	Text     string
	Style    map[string]any
	Extra    map[string]any
}

// MarshalJSON flattens Extra into the component object alongside the
// declared fields.
func (c Component) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["id"] = c.ID
	m["component"] = c.Type
	if c.Children != nil {
		m["children"] = c.Children
	}
	if c.Text != "" {
		m["text"] = c.Text
	}
	if c.Style != nil {
		m["style"] = c.Style
	}
	return json.Marshal(m)
}

// UnmarshalJSON extracts the declared fields and keeps everything else in Extra.
func (c *Component) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	take := func(key string, dst any) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		delete(m, key)
		return json.Unmarshal(raw, dst)
	}
	if err := take("id", &c.ID); err != nil {
		return fmt.Errorf("component id: %w", err)
	}
	if err := take("component", &c.Type); err != nil {
		return fmt.Errorf("component type: %w", err)
	}
	if err := take("children", &c.Children); err != nil {
		return fmt.Errorf("component children: %w", err)
	}
	if err := take("text", &c.Text); err != nil {
		return fmt.Errorf("component text: %w", err)
	}
	if err := take("style", &c.Style); err != nil {
		return fmt.Errorf("component style: %w", err)
	}
	if len(m) > 0 {
		c.Extra = make(map[string]any, len(m))
		for k, raw := range m {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("component field %q: %w", k, err)
			}
			c.Extra[k] = v
		}
	}
	return nil
}

// State is the full durable state of one surface.
type State struct {
	ID         string         `json:"surface_id"`
	Name       string         `json:"name,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	Size       Size           `json:"size"`
	Components []Component    `json:"components"`
	DataModel  map[string]any `json:"data_model"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// clone returns a deep copy of the state via JSON round-trip, so callers can
// hold it without racing the live tree.
func (st *State) clone() *State {
	data, err := json.Marshal(st)
	if err != nil {
		return &State{ID: st.ID}
	}
	out := &State{}
	if err := json.Unmarshal(data, out); err != nil {
		return &State{ID: st.ID}
	}
	return out
}

// Summary is the list-view projection of a surface.
type Summary struct {
	ID              string    `json:"surface_id"`
	Name            string    `json:"name,omitempty"`
	Size            Size      `json:"size"`
	SubscriberCount int       `json:"subscriber_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Handle is returned from Create: the surface identity plus the viewer
// locations a client can connect to.
type Handle struct {
	ID        string    `json:"surface_id"`
	Name      string    `json:"name,omitempty"`
	Size      Size      `json:"size"`
	URL       string    `json:"url"`
	WSURL     string    `json:"ws_url"`
	CreatedAt time.Time `json:"created_at"`
}
