package util

import "reflect"

// FlattenIterator yields the leaves of a nested slice in depth-first order.
// Slices and arrays are descended into; strings and []byte are leaves. Use
// Flatten to create one.
//
// Example:
//   it := Flatten([]interface{}{1, []int{2, 3}, "ab"})
//   for it.Scan() {
//     fmt.Println(it.Value()) // 1, 2, 3, "ab"
//   }
type FlattenIterator struct {
	stack []frame
	value interface{}
}

type frame struct {
	v reflect.Value
	i int
}

var bytesType = reflect.TypeOf([]byte(nil))

// isNested reports whether v should be descended into.
func isNested(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Type() != bytesType
	}
	return false
}

// Flatten returns an iterator over the leaves of v. If v is not a slice or an
// array, the iterator yields v itself. A nil v yields nothing.
func Flatten(v interface{}) *FlattenIterator {
	it := &FlattenIterator{}
	if v == nil {
		return it
	}
	it.stack = []frame{{v: reflect.ValueOf([]interface{}{v})}}
	return it
}

// Scan advances to the next leaf. It returns false when there is none.
func (it *FlattenIterator) Scan() bool {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.i >= top.v.Len() {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		elem := top.v.Index(top.i)
		top.i++
		for elem.Kind() == reflect.Interface && !elem.IsNil() {
			elem = elem.Elem()
		}
		if isNested(elem) {
			it.stack = append(it.stack, frame{v: elem})
			continue
		}
		if elem.Kind() == reflect.Interface {
			// nil interface.
			it.value = nil
		} else {
			it.value = elem.Interface()
		}
		return true
	}
	it.value = nil
	return false
}

// Value returns the current leaf.
//
// REQUIRES: the last call to Scan returned true.
func (it *FlattenIterator) Value() interface{} { return it.value }

// FlattenAll returns all the leaves of v.
func FlattenAll(v interface{}) []interface{} {
	var r []interface{}
	for it := Flatten(v); it.Scan(); {
		r = append(r, it.Value())
	}
	return r
}
