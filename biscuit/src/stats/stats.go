package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "time"

/// Counter_t is a statistical counter.
type Counter_t int64

/// Time_t accumulates nanoseconds.
type Time_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

/// Get returns the current count.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

/// Add adds the time elapsed since start.
func (c *Time_t) Add(start time.Time) {
	atomic.AddInt64((*int64)(c), int64(time.Since(start)))
}

/// Get returns the accumulated nanoseconds.
func (c *Time_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

/// Field_t is one counter of a stats struct.
type Field_t struct {
	Name string
	Val  int64
	Time bool
}

/// Fields reads every Counter_t and Time_t field of the struct pointed to by
/// st, in declaration order.
func Fields(st interface{}) []Field_t {
	v := reflect.ValueOf(st)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("stats: need pointer to struct")
	}
	v = v.Elem()
	var ret []Field_t
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanAddr() || !f.Addr().CanInterface() {
			continue
		}
		switch p := f.Addr().Interface().(type) {
		case *Counter_t:
			ret = append(ret, Field_t{Name: v.Type().Field(i).Name, Val: p.Get()})
		case *Time_t:
			ret = append(ret, Field_t{Name: v.Type().Field(i).Name, Val: p.Get(), Time: true})
		}
	}
	return ret
}

/// Stats2String converts a struct of counters to a printable string.
func Stats2String(st interface{}) string {
	s := ""
	for _, f := range Fields(st) {
		s += "\n\t#" + f.Name + ": " + strconv.FormatInt(f.Val, 10)
	}
	return s + "\n"
}

/// Reset zeroes every counter of the struct pointed to by st.
func Reset(st interface{}) {
	v := reflect.ValueOf(st).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanAddr() || !f.Addr().CanInterface() {
			continue
		}
		switch p := f.Addr().Interface().(type) {
		case *Counter_t:
			atomic.StoreInt64((*int64)(p), 0)
		case *Time_t:
			atomic.StoreInt64((*int64)(p), 0)
		}
	}
}

/// Source_t names one stats struct, e.g. the counters of one port.
type Source_t struct {
	Label string
	Stats interface{}
}
