package log

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format expands %time, %level, %field, %msg, %caller, %func, %goroutine and %n.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	if strings.Contains(output, "%caller") {
		output = strings.Replace(output, "%caller", getCaller(), 1)
	}
	if strings.Contains(output, "%func") {
		output = strings.Replace(output, "%func", getFunc(), 1)
	}
	output = strings.Replace(output, "%goroutine", getGoroutineID(), 1)
	output = strings.ReplaceAll(output, "%n", "\n")
	// message last so a literal % in it is never expanded
	output = strings.Replace(output, "%msg", entry.Message, 1)
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

var adapterPrefix = reflect.TypeOf(formatter{}).PkgPath() + ".(*logrusAdapter)"

// callerFrame finds the first frame outside logrus and the adapter.
func callerFrame() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.Contains(f.Function, "github.com/sirupsen/logrus") &&
			!strings.HasPrefix(f.Function, adapterPrefix) &&
			!strings.Contains(f.Function, ".(*formatter)") {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// getCaller renders package/file.go:line.
func getCaller() string {
	f, ok := callerFrame()
	if !ok {
		return "unknown"
	}
	file := f.File
	if i := strings.LastIndex(file, "/"); i != -1 && i+1 < len(file) {
		file = file[i+1:]
	}
	pkg := f.Function
	if i := strings.LastIndex(pkg, "/"); i != -1 {
		pkg = pkg[i+1:]
	}
	if i := strings.Index(pkg, "."); i != -1 {
		pkg = pkg[:i]
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, f.Line)
}

func getFunc() string {
	f, ok := callerFrame()
	if !ok {
		return "unknown"
	}
	name := f.Function
	if i := strings.LastIndex(name, "."); i != -1 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(fields) > 0 {
		return fields[0]
	}
	return "unknown"
}

// buildFields renders key=value pairs sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := entry.Data[k].(string)
		if !ok {
			v = fmt.Sprint(entry.Data[k])
		}
		fields = append(fields, k+"="+v)
	}
	return strings.Join(fields, ",")
}
