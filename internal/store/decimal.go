package store

import "github.com/shopspring/decimal"

// coerceValue recursively replaces every float32/float64 in v with a
// shopspring/decimal.Decimal, since DynamoDB's number type rejects
// binary floats and requires fixed-decimal scalars. Maps and slices are
// walked in place on copies; scalars and other types pass through
// unchanged.
func coerceValue(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = coerceValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, v := range val {
			out[i] = coerceValue(v)
		}
		return out
	default:
		return v
	}
}

// CoerceItem applies coerceValue across every attribute of an item body
// destined for the store.
func CoerceItem(item map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(item))
	for k, v := range item {
		out[k] = coerceValue(v)
	}
	return out
}

// CoerceValues applies coerceValue across an UpdateItem expression's
// attribute-value map (the `:x` placeholders), coerced separately from
// the item body since both travel through independent marshal calls.
func CoerceValues(values map[string]interface{}) map[string]interface{} {
	return CoerceItem(values)
}
