package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScalarKind tags the concrete type held by a Scalar.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
)

// Scalar is a tagged union of the value types a dynamic query can return.
// Exactly one of the value fields is meaningful, selected by Kind.
type Scalar struct {
	Kind   ScalarKind
	Bool   bool
	Int    int64
	Float  float64
	String string
	Time   time.Time
}

// NullScalar returns the absent value.
func NullScalar() Scalar { return Scalar{Kind: KindNull} }

// ScalarOf converts a driver-provided value into a Scalar. Unknown types
// are rendered through fmt as strings rather than rejected, since dynamic
// query results are for display only.
func ScalarOf(v any) Scalar {
	switch val := v.(type) {
	case nil:
		return Scalar{Kind: KindNull}
	case bool:
		return Scalar{Kind: KindBool, Bool: val}
	case int64:
		return Scalar{Kind: KindInt, Int: val}
	case int32:
		return Scalar{Kind: KindInt, Int: int64(val)}
	case int16:
		return Scalar{Kind: KindInt, Int: int64(val)}
	case int:
		return Scalar{Kind: KindInt, Int: int64(val)}
	case float64:
		return Scalar{Kind: KindFloat, Float: val}
	case float32:
		return Scalar{Kind: KindFloat, Float: float64(val)}
	case string:
		return Scalar{Kind: KindString, String: val}
	case []byte:
		return Scalar{Kind: KindString, String: string(val)}
	case time.Time:
		return Scalar{Kind: KindTime, Time: val}
	default:
		return Scalar{Kind: KindString, String: fmt.Sprint(val)}
	}
}

// MarshalJSON renders the underlying value, not the union wrapper.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(s.Bool)
	case KindInt:
		return json.Marshal(s.Int)
	case KindFloat:
		return json.Marshal(s.Float)
	case KindTime:
		return json.Marshal(s.Time)
	default:
		return json.Marshal(s.String)
	}
}

// Row is an ordered mapping from column name to typed scalar, one result
// row of a dynamic query. Column order follows the query's select list.
type Row struct {
	Columns []string
	Values  []Scalar
}

// MarshalJSON renders the row as a JSON object preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range r.Columns {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
