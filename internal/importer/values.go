// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package importer

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// FormValues serializes a row into form values, one per key, in ascending
// key order.
func FormValues(row Row) []FormValue {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]FormValue, 0, len(keys))
	for _, k := range keys {
		values = append(values, FormValue{FieldName: k, FieldValue: FormatValue(row[k])})
	}
	return values
}

// FormatValue renders a scalar the way the store expects it in a form value.
// nil becomes the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
