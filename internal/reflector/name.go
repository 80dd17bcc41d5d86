// Package reflector derives message type names from Go values.
//
// A type that implements MsgType() string names itself. Everything else is
// named "pkg/path.TypeName", resolved once per type and cached.
package reflector

import (
	"reflect"
	"sync"
)

// maxCacheSize bounds the name cache. The set of message types in a program is
// small, so hitting it means something generates types dynamically; the cache
// is then simply reset.
const maxCacheSize = 1024

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]string)
)

type msgTyper interface{ MsgType() string }

// NameOf returns the message type name of x.
func NameOf(x any) string {
	if mt, ok := x.(msgTyper); ok {
		return mt.MsgType()
	}
	return nameForType(reflect.TypeOf(x))
}

// NameFor returns the message type name of T. The zero value of T is consulted
// for a MsgType method first, so T must tolerate being used as a zero value.
func NameFor[T any]() string {
	var z T
	if mt, ok := any(z).(msgTyper); ok {
		return mt.MsgType()
	}
	return nameForType(reflect.TypeFor[T]())
}

func nameForType(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	muCache.RLock()
	name, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return name
	}

	name = t.PkgPath() + "." + t.Name()

	muCache.Lock()
	if len(cache) >= maxCacheSize {
		cache = make(map[reflect.Type]string)
	}
	cache[t] = name
	muCache.Unlock()
	return name
}
