package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacksonlee411/mandi-console/pkg/httperr"
)

// Attribute is one column of a resource table. Type holds the upper-cased
// database type name ("CHARACTER VARYING", "INTEGER", "TIMESTAMP WITH TIME ZONE").
type Attribute struct {
	Name     string
	Type     string
	Nullable bool
}

type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindBoolean  Kind = "boolean"
	KindJSON     Kind = "json"
)

// KindOf classifies a column type string.
func KindOf(typ string) Kind {
	t := strings.ToUpper(strings.TrimSpace(typ))
	switch {
	case t == "BOOLEAN" || t == "BOOL":
		return KindBoolean
	case strings.Contains(t, "TIMESTAMP") || strings.Contains(t, "DATETIME"):
		return KindDateTime
	case t == "DATE":
		return KindDate
	case strings.Contains(t, "JSON"):
		return KindJSON
	case t == "TEXT":
		return KindTextarea
	case strings.Contains(t, "VARCHAR") || strings.Contains(t, "CHARACTER") || strings.Contains(t, "CHAR"):
		return KindText
	case strings.Contains(t, "INT") || strings.Contains(t, "SERIAL"):
		return KindNumber
	case strings.Contains(t, "FLOAT") || strings.Contains(t, "NUMERIC") || strings.Contains(t, "DECIMAL") ||
		strings.Contains(t, "DOUBLE") || strings.Contains(t, "REAL"):
		return KindNumber
	default:
		return KindText
	}
}

func isInteger(typ string) bool {
	t := strings.ToUpper(typ)
	return strings.Contains(t, "INT") || strings.Contains(t, "SERIAL")
}

type Option struct {
	Label string
	Value string
}

// Widget describes the HTML control rendered for an attribute.
type Widget struct {
	Name      string
	Label     string
	Element   string // input | textarea | select
	InputType string
	Step      string
	Options   []Option
}

// WidgetFor maps an attribute to its form control. options carries the
// choices of an editable relation and is nil for plain columns.
func WidgetFor(attr Attribute, secret string, relationLabel string, options []Option) Widget {
	w := Widget{Name: attr.Name, Label: FormatLabel(attr.Name), Element: "input", InputType: "text"}
	if options != nil {
		w.Element = "select"
		w.InputType = ""
		w.Options = options
		if relationLabel != "" {
			w.Label = relationLabel
		}
		return w
	}
	if secret != "" && attr.Name == secret {
		w.InputType = "password"
		return w
	}
	switch KindOf(attr.Type) {
	case KindTextarea, KindJSON:
		w.Element = "textarea"
		w.InputType = ""
	case KindNumber:
		w.InputType = "number"
		w.Step = "any"
		if isInteger(attr.Type) {
			w.Step = "1"
		}
	case KindDate:
		w.InputType = "date"
	case KindDateTime:
		w.InputType = "datetime-local"
	case KindBoolean:
		w.Element = "select"
		w.InputType = ""
		w.Options = []Option{{Label: "True", Value: "true"}, {Label: "False", Value: "false"}}
	}
	return w
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999-07:00",
}

// Coerce converts a submitted value into the Go value stored for attr.
// Empty input becomes NULL. Booleans accept bool or "true"/"false" in any
// case; anything else is NULL. Unparseable numbers and dates are bad
// requests.
func Coerce(attr Attribute, raw any) (any, error) {
	var s string
	switch v := raw.(type) {
	case nil:
	case bool:
		if KindOf(attr.Type) == KindBoolean {
			return v, nil
		}
		s = strconv.FormatBool(v)
	case string:
		s = strings.TrimSpace(v)
	default:
		s = strings.TrimSpace(fmt.Sprint(v))
	}

	if KindOf(attr.Type) == KindBoolean {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, nil
		}
	}
	if s == "" {
		return nil, nil
	}

	switch KindOf(attr.Type) {
	case KindNumber:
		if isInteger(attr.Type) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, httperr.BadRequestf("%s: %q is not a whole number", FormatLabel(attr.Name), s)
			}
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, httperr.BadRequestf("%s: %q is not a number", FormatLabel(attr.Name), s)
		}
		return f, nil
	case KindDate:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, httperr.BadRequestf("%s: %q is not a date (YYYY-MM-DD)", FormatLabel(attr.Name), s)
		}
		return t, nil
	case KindDateTime:
		for _, l := range dateTimeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, nil
			}
		}
		return nil, httperr.BadRequestf("%s: %q is not a date and time", FormatLabel(attr.Name), s)
	case KindJSON:
		if !json.Valid([]byte(s)) {
			return nil, httperr.BadRequestf("%s: invalid JSON", FormatLabel(attr.Name))
		}
		return s, nil
	default:
		return s, nil
	}
}

// EditableAttributes drops the primary key, timestamps and protected
// attributes.
func EditableAttributes(cols []Attribute, r Resource) []Attribute {
	pk := r.PrimaryKey()
	out := make([]Attribute, 0, len(cols))
	for _, c := range cols {
		switch {
		case c.Name == pk, c.Name == "created_at", c.Name == "updated_at":
			continue
		case r.IsProtected(c.Name):
			continue
		}
		out = append(out, c)
	}
	return out
}

// ReadableAttributes drops only the primary key.
func ReadableAttributes(cols []Attribute, r Resource) []Attribute {
	pk := r.PrimaryKey()
	out := make([]Attribute, 0, len(cols))
	for _, c := range cols {
		if c.Name == pk {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FormValue renders a stored value for an input's value attribute.
func FormValue(attr Attribute, v any) string {
	if v == nil {
		return ""
	}
	switch KindOf(attr.Type) {
	case KindDate:
		return FormatDateTime(v, "2006-01-02")
	case KindDateTime:
		return FormatDateTime(v, "2006-01-02T15:04")
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if f, ok := AsFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
