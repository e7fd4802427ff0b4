package types

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/spf13/cast"
	"github.com/warriorguo/eventflow/utils"
)

// Data is a dynamically shaped event payload.
type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

// Lookup resolves a dotted path such as `lead.source` (or `data.lead.source`)
// against the payload. A missing segment or a nil terminal reports false.
func (d Data) Lookup(path string) (any, bool) {
	return utils.ResolvePath(map[string]any(d), path)
}

// Render substitutes `{{dotted.path}}` placeholders in s with payload values.
func (d Data) Render(s string) string {
	return utils.RenderTemplate(s, map[string]any(d))
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d *Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFoundf("key %s", key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Annotatef(err, "marshal %s", key)
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

// Merge returns a shallow copy of d overlaid with extra. Keys of extra win.
func (d Data) Merge(extra map[string]any) Data {
	return Data(utils.MergeMap(map[string]any(d), extra))
}
