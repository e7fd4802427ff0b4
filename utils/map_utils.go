package utils

import (
	"reflect"
)

func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	cloneM := make(map[K]V, len(m))
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

// MergeMap returns a copy of base overlaid with extra; extra wins on collision.
func MergeMap[K comparable, V any](base, extra map[K]V) map[K]V {
	merged := CloneMap(base)
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func CountOf[K comparable](a []K, v K) int {
	n := 0
	for _, item := range a {
		if item == v {
			n++
		}
	}
	return n
}

// childOfNamedMap handles named map types with string keys, such as types.Data.
func childOfNamedMap(v any, key string) (any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	c := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !c.IsValid() {
		return nil, false
	}
	return c.Interface(), true
}
