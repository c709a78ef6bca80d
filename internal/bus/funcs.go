package bus

import "reflect"

// reflectFuncEqual reports whether two Handlers wrap the same underlying
// function, using reflect since func values are not comparable in Go.
func reflectFuncEqual(a, b Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
