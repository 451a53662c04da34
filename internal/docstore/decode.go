package docstore

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies rec into out, a pointer to a struct or map, matching fields
// by their json tags. Input is weakly typed so hash-mode records, whose values
// all come back as strings, decode into ints, floats and bools. Strings
// holding JSON decode into nested maps, slices and structs.
func Decode(rec Record, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			jsonStringHook,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(rec))
}

// jsonStringHook decodes JSON text into structured targets.
func jsonStringHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct:
	default:
		return data, nil
	}
	if to == reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	s := reflect.ValueOf(data).String()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return data, nil
	}
	return v, nil
}
