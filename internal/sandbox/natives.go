package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/NamanBalaji/tunedl/internal/capability"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/proxy"
)

type native = func(call goja.FunctionCall) goja.Value

const (
	// maxBufferSize bounds any buffer a script can make the host allocate.
	maxBufferSize = 32 << 20
	// lengthCheckEvery is how many elements a copy loop handles between deadline checks.
	lengthCheckEvery = 4096
)

// natives is the closed set of Go bindings the prelude builds the script globals from.
func (r *Runtime) natives() *goja.Object {
	obj := r.vm.NewObject()

	bindings := map[string]native{
		"md5":              r.digest(capability.MD5),
		"sha1":             r.digest(capability.SHA1),
		"sha256":           r.digest(capability.SHA256),
		"base64Encode":     r.base64Encode,
		"base64Decode":     r.base64Decode,
		"aesEncrypt":       r.aes(capability.AESEncrypt),
		"aesDecrypt":       r.aes(capability.AESDecrypt),
		"rsaEncrypt":       r.rsaEncrypt,
		"rsaDecrypt":       r.rsaDecrypt,
		"randomBytes":      r.randomBytes,
		"decode":           r.decode,
		"encode":           r.encode,
		"concat":           r.concat,
		"alloc":            r.alloc,
		"slice":            r.slice,
		"gzip":             r.transform(capability.Gzip),
		"gunzip":           r.transform(capability.Gunzip),
		"deflate":          r.transform(capability.Deflate),
		"inflate":          r.transform(capability.Inflate),
		"brotliCompress":   r.transform(capability.BrotliCompress),
		"brotliDecompress": r.transform(capability.BrotliDecompress),
		"urlEncode":        r.urlEncode,
		"urlDecode":        r.urlDecode,
		"now":              r.now,
		"setTimeout":       r.setTimer(false),
		"setInterval":      r.setTimer(true),
		"clearTimer":       r.clearTimer,
		"on":               r.on,
		"send":             r.send,
		"request":          r.request,
		"log":              r.log,
	}

	for name, fn := range bindings {
		_ = obj.Set(name, r.guard(name, fn))
	}

	return obj
}

// guard turns a Go runtime panic inside a binding into a script exception, which then
// surfaces as a handler error. Script exceptions and VM interrupts pass through.
func (r *Runtime) guard(name string, fn native) native {
	return func(call goja.FunctionCall) goja.Value {
		defer func() {
			if p := recover(); p != nil {
				if rerr, ok := p.(runtime.Error); ok {
					logger.Warnf("[plugin %s] binding %s panicked: %v", r.id, name, rerr)
					r.throw(fmt.Errorf("%s: %w", name, rerr))
				}
				panic(p)
			}
		}()

		return fn(call)
	}
}

// throw raises err inside the script as an Error.
func (r *Runtime) throw(err error) {
	panic(r.vm.NewGoError(err))
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// bytesOf accepts strings (as UTF-8), buffers, ArrayBuffers and arrays of numbers.
func (r *Runtime) bytesOf(v goja.Value) []byte {
	if isNullish(v) {
		return nil
	}

	switch t := v.Export().(type) {
	case string:
		return []byte(t)
	case []byte:
		return append([]byte(nil), t...)
	case goja.ArrayBuffer:
		return append([]byte(nil), t.Bytes()...)
	}

	obj := v.ToObject(r.vm)

	n := obj.Get("length")
	if isNullish(n) {
		return []byte(v.String())
	}

	out := make([]byte, r.checkLength(n.ToInteger()))
	for i := range out {
		r.checkDeadline(i)
		// Holes and missing indexes read as zero.
		if el := obj.Get(strconv.Itoa(i)); !isNullish(el) {
			out[i] = byte(el.ToInteger())
		}
	}

	return out
}

// checkLength rejects an array-like length no buffer could hold.
func (r *Runtime) checkLength(n int64) int {
	if n < 0 || n > maxBufferSize {
		r.throw(fmt.Errorf("invalid buffer length %d", n))
	}

	return int(n)
}

// checkDeadline aborts a long copy loop once the call has timed out, since the VM
// interrupt only takes effect between script instructions.
func (r *Runtime) checkDeadline(i int) {
	if i%lengthCheckEvery == 0 && r.callCtx.Err() != nil {
		r.throw(errInterrupted)
	}
}

func (r *Runtime) alloc(call goja.FunctionCall) goja.Value {
	return r.rawBuffer(make([]byte, r.checkLength(call.Argument(0).ToInteger())))
}

func (r *Runtime) newBuffer(b []byte) goja.Value {
	v, err := r.wrapBuf(goja.Undefined(), r.vm.ToValue(r.vm.NewArrayBuffer(b)))
	if err != nil {
		r.throw(err)
	}

	return v
}

// rawBuffer returns an ArrayBuffer for the prelude to wrap.
func (r *Runtime) rawBuffer(b []byte) goja.Value {
	return r.vm.ToValue(r.vm.NewArrayBuffer(b))
}

// toJS converts Go data into plain script objects by round-tripping through JSON.
func (r *Runtime) toJS(v any) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case string, bool, int, int64, float64:
		return r.vm.ToValue(t)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return r.vm.ToValue(v)
	}

	out, err := r.jsonParse(goja.Undefined(), r.vm.ToValue(string(data)))
	if err != nil {
		return r.vm.ToValue(v)
	}

	return out
}

func (r *Runtime) digest(fn func([]byte) string) native {
	return func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(fn(r.bytesOf(call.Argument(0))))
	}
}

func (r *Runtime) base64Encode(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(capability.Base64Encode(r.bytesOf(call.Argument(0))))
}

func (r *Runtime) base64Decode(call goja.FunctionCall) goja.Value {
	b, err := capability.Base64Decode(call.Argument(0).String())
	if err != nil {
		r.throw(err)
	}

	return r.vm.ToValue(string(b))
}

func (r *Runtime) aes(fn func(data []byte, mode string, key, iv []byte) ([]byte, error)) native {
	return func(call goja.FunctionCall) goja.Value {
		mode := "aes-128-cbc"
		if m := call.Argument(1); !isNullish(m) {
			mode = m.String()
		}

		out, err := fn(r.bytesOf(call.Argument(0)), mode, r.bytesOf(call.Argument(2)), r.bytesOf(call.Argument(3)))
		if err != nil {
			r.throw(err)
		}

		return r.rawBuffer(out)
	}
}

func (r *Runtime) rsaEncrypt(call goja.FunctionCall) goja.Value {
	padding := capability.PaddingPKCS1
	if p := call.Argument(2); !isNullish(p) {
		padding = capability.ParsePadding(p.String())
	}

	out, err := capability.RSAEncrypt(r.bytesOf(call.Argument(0)), call.Argument(1).String(), padding)
	if err != nil {
		r.throw(err)
	}

	return r.rawBuffer(out)
}

func (r *Runtime) rsaDecrypt(call goja.FunctionCall) goja.Value {
	out, err := capability.RSADecrypt(r.bytesOf(call.Argument(0)), call.Argument(1).String())
	if err != nil {
		r.throw(err)
	}

	return r.rawBuffer(out)
}

func (r *Runtime) randomBytes(call goja.FunctionCall) goja.Value {
	out, err := capability.RandomBytes(int(call.Argument(0).ToInteger()))
	if err != nil {
		r.throw(err)
	}

	return r.rawBuffer(out)
}

func encodingArg(v goja.Value) string {
	if isNullish(v) {
		return "utf8"
	}

	return v.String()
}

func (r *Runtime) decode(call goja.FunctionCall) goja.Value {
	data := call.Argument(0)

	if s, ok := data.Export().(string); ok {
		b, err := capability.Decode(s, encodingArg(call.Argument(1)))
		if err != nil {
			r.throw(err)
		}
		return r.rawBuffer(b)
	}

	return r.rawBuffer(r.bytesOf(data))
}

func (r *Runtime) encode(call goja.FunctionCall) goja.Value {
	s, err := capability.Encode(r.bytesOf(call.Argument(0)), encodingArg(call.Argument(1)))
	if err != nil {
		r.throw(err)
	}

	return r.vm.ToValue(s)
}

func (r *Runtime) concat(call goja.FunctionCall) goja.Value {
	list := call.Argument(0)
	if isNullish(list) {
		return r.rawBuffer(nil)
	}

	obj := list.ToObject(r.vm)
	n := r.checkLength(obj.Get("length").ToInteger())

	parts := make([][]byte, 0, min(n, lengthCheckEvery))
	total := 0
	for i := range n {
		r.checkDeadline(i)

		part := r.bytesOf(obj.Get(strconv.Itoa(i)))
		if total += len(part); total > maxBufferSize {
			r.throw(fmt.Errorf("concatenated buffer exceeds %d bytes", maxBufferSize))
		}
		parts = append(parts, part)
	}

	return r.rawBuffer(capability.Concat(parts...))
}

func (r *Runtime) slice(call goja.FunctionCall) goja.Value {
	b := r.bytesOf(call.Argument(0))

	start, end := 0, len(b)
	if v := call.Argument(1); !isNullish(v) {
		start = int(v.ToInteger())
	}
	if v := call.Argument(2); !isNullish(v) {
		end = int(v.ToInteger())
	}

	return r.rawBuffer(capability.Slice(b, start, end))
}

func (r *Runtime) transform(fn func([]byte) ([]byte, error)) native {
	return func(call goja.FunctionCall) goja.Value {
		out, err := fn(r.bytesOf(call.Argument(0)))
		if err != nil {
			r.throw(err)
		}

		return r.rawBuffer(out)
	}
}

func (r *Runtime) urlEncode(call goja.FunctionCall) goja.Value {
	return r.vm.ToValue(capability.URLEncode(call.Argument(0).String()))
}

func (r *Runtime) urlDecode(call goja.FunctionCall) goja.Value {
	s, err := capability.URLDecode(call.Argument(0).String())
	if err != nil {
		r.throw(err)
	}

	return r.vm.ToValue(s)
}

func (r *Runtime) now(goja.FunctionCall) goja.Value {
	return r.vm.ToValue(time.Now().UnixMilli())
}

func (r *Runtime) setTimer(repeat bool) native {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(r.vm.NewTypeError("timer callback is not a function"))
		}

		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		return r.vm.ToValue(r.timers.add(fn, delay, repeat, args))
	}
}

func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	if id := call.Argument(0); !isNullish(id) {
		r.timers.cancel(id.ToInteger())
	}

	return goja.Undefined()
}

func (r *Runtime) on(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()

	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(r.vm.NewTypeError("handler for %s is not a function", event))
	}

	switch canonical, known := actionAliases[event]; {
	case event == genericEvent:
		r.generic = fn
	case known:
		r.handlers[canonical] = fn
	default:
		logger.Debugf("[plugin %s] ignoring handler for unknown event %q", r.id, event)
	}

	return goja.Undefined()
}

func (r *Runtime) send(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	data, _ := export(call.Argument(1)).(map[string]any)

	switch event {
	case "inited":
		if sources, ok := data["sources"].(map[string]any); ok {
			tags := make([]string, 0, len(sources))
			for tag := range sources {
				tags = append(tags, tag)
			}
			sort.Strings(tags)
			r.sources = tags
		}
		logger.Infof("[plugin %s] initialized, sources=%v", r.id, r.sources)
	case "updateAlert":
		logger.Infof("[plugin %s] update available: %v", r.id, data["log"])
	default:
		logger.Debugf("[plugin %s] event %s: %v", r.id, event, data)
	}

	return goja.Undefined()
}

func (r *Runtime) request(call goja.FunctionCall) goja.Value {
	rawURL := call.Argument(0).String()

	if r.req == nil {
		r.throw(fmt.Errorf("requests are not available to plugin %s", r.id))
	}

	opts, _ := export(call.Argument(1)).(map[string]any)

	resp, err := r.req.Request(r.callCtx, rawURL, requestOptions(opts))
	if err != nil {
		r.throw(err)
	}

	return r.response(resp)
}

func (r *Runtime) response(resp *proxy.Response) goja.Value {
	obj := r.vm.NewObject()
	_ = obj.Set("statusCode", resp.StatusCode)
	_ = obj.Set("statusMessage", http.StatusText(resp.StatusCode))
	_ = obj.Set("headers", r.toJS(resp.Headers))
	_ = obj.Set("blocked", resp.Blocked)
	_ = obj.Set("suspectedFragment", resp.SuspectedFragment)
	_ = obj.Set("fromCache", resp.FromCache)

	if resp.Body == nil {
		_ = obj.Set("body", r.newBuffer(resp.Raw))
	} else {
		_ = obj.Set("body", r.toJS(resp.Body))
	}

	return obj
}

// requestOptions maps the script's options object. Both form and data are sent url-encoded.
func requestOptions(m map[string]any) proxy.Options {
	opts := proxy.Options{}
	if m == nil {
		return opts
	}

	opts.Method, _ = m["method"].(string)
	opts.Body = m["body"]

	if h, ok := m["headers"].(map[string]any); ok {
		opts.Headers = make(map[string]string, len(h))
		for k, v := range h {
			opts.Headers[k] = fmt.Sprint(v)
		}
	}

	for _, key := range []string{"form", "data"} {
		if f, ok := m[key].(map[string]any); ok {
			opts.Form = f
			break
		}
	}

	if b, ok := m["binary"].(bool); ok {
		opts.Binary = b
	}
	if rt, ok := m["responseType"].(string); ok && strings.EqualFold(rt, "buffer") {
		opts.Binary = true
	}

	switch t := m["timeout"].(type) {
	case int64:
		opts.Timeout = time.Duration(t) * time.Millisecond
	case float64:
		opts.Timeout = time.Duration(t * float64(time.Millisecond))
	}

	return opts
}

func (r *Runtime) log(call goja.FunctionCall) goja.Value {
	level := call.Argument(0).String()

	var parts []string
	if list := call.Argument(1); !isNullish(list) {
		obj := list.ToObject(r.vm)
		n := r.checkLength(obj.Get("length").ToInteger())
		for i := range n {
			r.checkDeadline(i)
			parts = append(parts, r.format(obj.Get(strconv.Itoa(i))))
		}
	}

	msg := strings.Join(parts, " ")

	switch level {
	case "error":
		logger.Errorf("[plugin %s] %s", r.id, msg)
	case "warn":
		logger.Warnf("[plugin %s] %s", r.id, msg)
	case "debug":
		logger.Debugf("[plugin %s] %s", r.id, msg)
	default:
		logger.Infof("[plugin %s] %s", r.id, msg)
	}

	return goja.Undefined()
}

func (r *Runtime) format(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(v); !isFn {
			if b, err := json.Marshal(obj.Export()); err == nil {
				return string(b)
			}
		}
	}

	if v == nil {
		return "undefined"
	}

	return v.String()
}
