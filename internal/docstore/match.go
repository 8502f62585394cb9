package docstore

import "fmt"

// Matches evaluates q's filters and range against doc in process. Stores that
// cannot push predicates down use it to keep semantics identical to the
// production backend.
func Matches(doc Document, q Query) bool {
	for _, filter := range q.Filters {
		value, ok := doc.Fields[filter.Field]
		if !ok || !equal(value, filter.Value) {
			return false
		}
	}
	if q.Range != nil {
		ts, ok := doc.Time(q.Range.Field)
		if !ok {
			return false
		}
		if !q.Range.Start.IsZero() && ts.Before(q.Range.Start.UTC()) {
			return false
		}
		if !q.Range.End.IsZero() && !ts.Before(q.Range.End.UTC()) {
			return false
		}
	}
	return true
}

// Apply returns a copy of fields with updates applied.
func Apply(fields map[string]any, updates []FieldUpdate) (map[string]any, error) {
	out := cloneMap(fields)
	for _, update := range updates {
		switch update.Kind {
		case UpdateSet:
			out[update.Field] = cloneValue(update.Value)
		case UpdateDelete:
			delete(out, update.Field)
		case UpdateAppend:
			existing, ok := out[update.Field]
			if !ok || existing == nil {
				out[update.Field] = []any{cloneValue(update.Value)}
				continue
			}
			list, ok := existing.([]any)
			if !ok {
				return nil, fmt.Errorf("docstore: field %q is not an array", update.Field)
			}
			out[update.Field] = append(list, cloneValue(update.Value))
		default:
			return nil, fmt.Errorf("docstore: unknown update kind %d", update.Kind)
		}
	}
	return out, nil
}

func equal(a, b any) bool {
	if ta, ok := asTime(a); ok {
		tb, ok := asTime(b)
		return ok && ta.Equal(tb)
	}
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
