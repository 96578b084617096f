package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mchmarny/permitctl/pkg/score"
)

// decodeApplication parses a JSON object into an application. Scalar values
// are converted to their text form and null becomes an empty (missing) value.
func decodeApplication(b []byte) (score.Application, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var raw any
	if err := d.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", score.ErrInvalidInput, err)
	}
	if d.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", score.ErrInvalidInput)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %w", score.ErrInvalidInput, errNotObject)
	}

	app := make(score.Application, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
			app[k] = ""
		case string:
			app[k] = t
		case bool:
			app[k] = strconv.FormatBool(t)
		case json.Number:
			app[k] = t.String()
		default:
			return nil, fmt.Errorf("%w: field %q: %w", score.ErrInvalidInput, k, errNotObject)
		}
	}
	return app, nil
}
