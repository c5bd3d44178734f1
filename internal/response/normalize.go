package response

import "github.com/pkg/errors"

// Normalize picks the record kind of raw. The checks run in a fixed order and
// the first match wins, so a payload carrying "valid" is always a Validation
// whatever else it holds.
func Normalize(raw map[string]interface{}) Record {
	switch {
	case has(raw, "valid"):
		return NewValidation(raw)
	case has(raw, "isMain"):
		return NewBranch(raw)
	case has(raw, "key", "name", "qualifier"):
		return NewComponent(raw)
	default:
		if raw == nil {
			return Raw{}
		}
		return Raw(raw)
	}
}

// NormalizeAll normalizes every element, keeping their order.
func NormalizeAll(raws []map[string]interface{}) []Record {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

// Components normalizes raws and requires each one to be a Component.
func Components(raws []map[string]interface{}) ([]*Component, error) {
	out := make([]*Component, 0, len(raws))
	for i, r := range NormalizeAll(raws) {
		c, ok := r.(*Component)
		if !ok {
			return nil, errors.Wrapf(ErrUnexpectedRecord, "element %d is %T, want component", i, r)
		}
		out = append(out, c)
	}
	return out, nil
}

// Branches normalizes raws and requires each one to be a Branch.
func Branches(raws []map[string]interface{}) ([]*Branch, error) {
	out := make([]*Branch, 0, len(raws))
	for i, r := range NormalizeAll(raws) {
		b, ok := r.(*Branch)
		if !ok {
			return nil, errors.Wrapf(ErrUnexpectedRecord, "element %d is %T, want branch", i, r)
		}
		out = append(out, b)
	}
	return out, nil
}

// Objects converts a decoded JSON array into a slice of mappings. Elements
// that are not objects are rejected.
func Objects(v interface{}) ([]map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedRecord, "got %T, want array", v)
	}
	out := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Wrapf(ErrUnexpectedRecord, "element %d is %T, want object", i, item)
		}
		out = append(out, m)
	}
	return out, nil
}

func has(raw map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := raw[k]; !ok {
			return false
		}
	}
	return true
}
