package core

// Coerce converts v to the Go value a sink writes for a column of type typ:
// int64, float64, bool, time.Time or string (JSON columns as JSON text).
// It returns nil when v is nil or cannot be represented.
func Coerce(typ ColumnType, v any) any {
	switch typ {
	case TypeInt:
		return Int(v)
	case TypeFloat:
		return Float(v)
	case TypeBool:
		return Bool(v)
	case TypeTimestamp:
		if ts, ok := Time(v); ok {
			return ts
		}
		return nil
	case TypeJSON:
		s, err := JSONText(v)
		if err != nil {
			return nil
		}
		return s
	default:
		return String(v)
	}
}

// PhysicalSchema narrows each column to a type every value coerces to. A
// column holding any value that does not fit its declared type is demoted
// to string.
func (t *Table) PhysicalSchema() Schema {
	out := make(Schema, len(t.Schema))
	for i, c := range t.Schema {
		out[i] = c
		for _, r := range t.Rows {
			if v := r[c.Name]; v != nil && Coerce(c.Type, v) == nil {
				out[i].Type = TypeString
				break
			}
		}
	}
	return out
}
