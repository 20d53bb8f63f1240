package kube

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

// indexedKey matches array style keys such as "labelSelector[0]" or
// "command[]".
var indexedKey = regexp.MustCompile(`^(.+?)\[(\d*)\]$`)

// Query holds request query parameters. Slice values become repeated keys
// and array style keys ("name[0]") are folded into their base name, so
//
//	Query{"labelSelector[0]": "a", "labelSelector[1]": "b"}
//
// encodes as "labelSelector=a&labelSelector=b".
type Query map[string]interface{}

// Values flattens q into url.Values. Repeated values of an indexed key keep
// index order.
func (q Query) Values() url.Values {
	type entry struct {
		key   string
		base  string
		index int
	}

	entries := make([]entry, 0, len(q))
	for key := range q {
		e := entry{key: key, base: key, index: -1}
		if m := indexedKey.FindStringSubmatch(key); m != nil {
			e.base = m[1]
			e.index = math.MaxInt
			if n, err := strconv.Atoi(m[2]); err == nil {
				e.index = n
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.base != b.base {
			return a.base < b.base
		}
		if a.index != b.index {
			return a.index < b.index
		}
		return a.key < b.key
	})

	values := url.Values{}
	for _, e := range entries {
		for _, v := range flattenValue(q[e.key]) {
			values.Add(e.base, v)
		}
	}
	return values
}

// Encode returns the URL encoded query with keys sorted.
func (q Query) Encode() string {
	return q.Values().Encode()
}

// Merge appends values to q and returns it.
func (q Query) Merge(values url.Values) Query {
	for key, vs := range values {
		q[key] = append(flattenValue(q[key]), vs...)
	}
	return q
}

func flattenValue(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case bool:
		return []string{strconv.FormatBool(v)}
	case int:
		return []string{strconv.Itoa(v)}
	case int64:
		return []string{strconv.FormatInt(v, 10)}
	case int32:
		return []string{strconv.FormatInt(int64(v), 10)}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, flattenValue(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
