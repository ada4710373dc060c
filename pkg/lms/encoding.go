package lms

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Encoding selects how a request body is serialized on the wire.
type Encoding string

const (
	// EncodingJSON serializes the body as a JSON document.
	EncodingJSON Encoding = "json"
	// EncodingForm serializes the body url-encoded with bracket notation for
	// nested keys. The rubric mutation endpoint only accepts this shape.
	EncodingForm Encoding = "form"
)

// EncodeForm flattens a nested body into bracket-notated form values, e.g.
// {"rubric_assessment": {"c1": {"points": 8}}} becomes
// rubric_assessment[c1][points]=8.
func EncodeForm(body map[string]any) url.Values {
	values := url.Values{}
	for key, val := range body {
		appendFormValue(values, key, val)
	}
	return values
}

func appendFormValue(values url.Values, key string, val any) {
	switch v := val.(type) {
	case map[string]any:
		for sub, nested := range v {
			appendFormValue(values, key+"["+sub+"]", nested)
		}
	case []any:
		for _, item := range v {
			appendFormValue(values, key+"[]", item)
		}
	case nil:
	default:
		values.Add(key, formatScalar(v))
	}
}

func formatScalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", s)
	}
}
