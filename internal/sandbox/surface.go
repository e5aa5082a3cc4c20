package sandbox

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/dosing"
	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox/helpers"
)

// Surface is the per-execution object graph a script may reference. Created
// fresh for every run and never shared across executions.
type Surface struct {
	// Me is the read-only context accessor bound as the global `me`.
	Me *goja.Object
	// Console collects console-style output in call order.
	Console *ConsoleCapture
	// OmittedExtensions counts author extensions dropped during the build.
	OmittedExtensions int
}

// ConsoleCapture records console calls made by a script.
type ConsoleCapture struct {
	mu    sync.Mutex
	lines []string
}

func (c *ConsoleCapture) append(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if level == "log" {
		c.lines = append(c.lines, msg)
	} else {
		c.lines = append(c.lines, "["+level+"] "+msg)
	}
}

// Lines returns captured output in call order.
func (c *ConsoleCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.lines...)
}

// SurfaceBuilder installs capability surfaces into fresh runtimes.
type SurfaceBuilder struct {
	log  *logging.Logger
	html *helpers.HTML
}

// NewSurfaceBuilder creates a builder. The HTML policy is immutable and
// shared across builds.
func NewSurfaceBuilder(log *logging.Logger) *SurfaceBuilder {
	if log == nil {
		log = logging.NewNop()
	}
	return &SurfaceBuilder{
		log:  log,
		html: helpers.NewHTML(),
	}
}

// Build installs the closed symbol set into vm: the `me` accessor, the
// helper library, a console capturer, and the author extensions from
// execCtx. A malformed extension is logged and omitted rather than failing
// the build.
func (b *SurfaceBuilder) Build(vm *goja.Runtime, execCtx *ExecutionContext) *Surface {
	if execCtx == nil {
		execCtx = &ExecutionContext{}
	}

	surface := &Surface{Console: &ConsoleCapture{}}

	surface.Me = b.buildAccessor(vm, execCtx)
	vm.Set("me", surface.Me)

	b.installConsole(vm, surface.Console)
	b.installHelpers(vm)

	// Timers are not part of the surface; scripts get inert stand-ins so a
	// stray setTimeout is a no-op instead of a ReferenceError.
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("setTimeout", noop)
	vm.Set("setInterval", noop)

	surface.OmittedExtensions = b.installExtensions(vm, surface.Me, execCtx.Extensions)
	return surface
}

// buildAccessor constructs the `me` object: getValue/getObject plus the
// wrapped dosing-calculation functions. None of its methods throw.
func (b *SurfaceBuilder) buildAccessor(vm *goja.Runtime, execCtx *ExecutionContext) *goja.Object {
	me := vm.NewObject()

	me.Set("getValue", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(0)
		}
		key := call.Arguments[0].String()
		if v, ok := execCtx.Values[key]; ok {
			return vm.ToValue(v)
		}
		if obj, ok := execCtx.Objects[key]; ok {
			return vm.ToValue(obj)
		}
		return vm.ToValue(0)
	})

	me.Set("getObject", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			if obj, ok := execCtx.Objects[call.Arguments[0].String()]; ok {
				return vm.ToValue(obj)
			}
		}
		return vm.NewObject()
	})

	me.Set("getBaseRequirements", func(call goja.FunctionCall) goja.Value {
		weight := numericContextValue(execCtx, "weight")
		if len(call.Arguments) > 0 {
			weight = call.Arguments[0].ToFloat()
		}
		r := dosing.BaseRequirements(weight)
		return vm.ToValue(map[string]any{
			"calories":     r.Calories,
			"proteinGrams": r.ProteinGrams,
			"fluidML":      r.FluidML,
		})
	})

	me.Set("computeDerivedQuantity", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(0)
		}
		name := call.Arguments[0].String()
		return vm.ToValue(dosing.DerivedQuantity(name, numericContextValues(execCtx)))
	})

	me.Set("convertUnit", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 3 {
			return vm.ToValue(0)
		}
		v := call.Arguments[0].ToFloat()
		out, err := dosing.ConvertUnit(v, call.Arguments[1].String(), call.Arguments[2].String())
		if err != nil {
			return vm.ToValue(0)
		}
		return vm.ToValue(out)
	})

	return me
}

func (b *SurfaceBuilder) installConsole(vm *goja.Runtime, capture *ConsoleCapture) {
	console := vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info"} {
		level := level
		console.Set(level, func(call goja.FunctionCall) goja.Value {
			var msg string
			for i, arg := range call.Arguments {
				if i > 0 {
					msg += " "
				}
				msg += arg.String()
			}
			capture.append(level, msg)
			return goja.Undefined()
		})
	}
	vm.Set("console", console)
}

// installHelpers binds the fixed formatting/validation helper library as
// globals. All helpers are pure and operate only on their arguments.
func (b *SurfaceBuilder) installHelpers(vm *goja.Runtime) {
	html := b.html

	vm.Set("roundTo", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(helpers.RoundTo(argFloat(call, 0), int(argInt(call, 1))))
	})
	vm.Set("formatNumber", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(helpers.FormatNumber(argFloat(call, 0), int(argInt(call, 1))))
	})
	vm.Set("choose", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(helpers.Choose(argBool(call, 0), argString(call, 1), argString(call, 2)))
	})
	vm.Set("pluralize", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(helpers.Pluralize(argFloat(call, 0), argString(call, 1), argString(call, 2)))
	})
	vm.Set("classifyRange", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(helpers.ClassifyRange(
			argFloat(call, 0), argFloat(call, 1), argFloat(call, 2), argFloat(call, 3), argFloat(call, 4),
		))
	})

	vm.Set("bold", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Bold(argString(call, 0)))
	})
	vm.Set("italic", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Italic(argString(call, 0)))
	})
	vm.Set("underline", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Underline(argString(call, 0)))
	})
	vm.Set("highlight", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Highlight(argString(call, 0), argString(call, 1)))
	})
	vm.Set("alertBox", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Alert(argString(call, 0), argString(call, 1)))
	})
	vm.Set("htmlList", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.List(toStrings(arg(call, 0)), argBool(call, 1)))
	})
	vm.Set("htmlTable", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(html.Table(toStrings(arg(call, 0)), toRows(arg(call, 1))))
	})
}

// installExtensions compiles author-defined functions and binds them as
// globals whose `this` resolves to the context accessor. A definition that
// fails to compile is logged and skipped; it must not break scripts that
// don't use it. Returns the number of omitted definitions.
func (b *SurfaceBuilder) installExtensions(vm *goja.Runtime, me *goja.Object, exts []Extension) int {
	omitted := 0
	for _, ext := range exts {
		if ext.Name == "" || ext.Name == "me" || ext.Name == "console" {
			b.log.Warn("skipping extension with reserved or empty name", zap.String("name", ext.Name))
			omitted++
			continue
		}

		prog, err := goja.Compile(ext.Name, "(function(){"+ext.Body+"\n})", false)
		if err != nil {
			b.log.Warn("extension failed to compile",
				zap.String("name", ext.Name),
				zap.Error(err),
			)
			omitted++
			continue
		}

		v, err := vm.RunProgram(prog)
		if err != nil {
			b.log.Warn("extension failed to evaluate", zap.String("name", ext.Name), zap.Error(err))
			omitted++
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			omitted++
			continue
		}

		vm.Set(ext.Name, func(call goja.FunctionCall) goja.Value {
			ret, err := fn(me, call.Arguments...)
			if err != nil {
				if exc, ok := err.(*goja.Exception); ok {
					panic(vm.ToValue(exc.Value()))
				}
				panic(vm.ToValue(err.Error()))
			}
			return ret
		})
	}
	return omitted
}

// numericContextValue extracts a single context value as a float, or 0.
func numericContextValue(execCtx *ExecutionContext, key string) float64 {
	v, ok := execCtx.Values[key]
	if !ok {
		return 0
	}
	return asFloat(v)
}

// numericContextValues extracts every numeric-convertible context value.
func numericContextValues(execCtx *ExecutionContext) map[string]float64 {
	out := make(map[string]float64, len(execCtx.Values))
	for k, v := range execCtx.Values {
		out[k] = asFloat(v)
	}
	return out
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func arg(call goja.FunctionCall, i int) goja.Value {
	if i >= len(call.Arguments) {
		return goja.Undefined()
	}
	return call.Arguments[i]
}

func argString(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

func argFloat(call goja.FunctionCall, i int) float64 {
	if i >= len(call.Arguments) {
		return 0
	}
	return call.Arguments[i].ToFloat()
}

func argInt(call goja.FunctionCall, i int) int64 {
	if i >= len(call.Arguments) {
		return 0
	}
	return call.Arguments[i].ToInteger()
}

func argBool(call goja.FunctionCall, i int) bool {
	if i >= len(call.Arguments) {
		return false
	}
	return call.Arguments[i].ToBoolean()
}

func toStrings(v goja.Value) []string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	raw, ok := v.Export().([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(raw))
	for i, e := range raw {
		out[i] = fmt.Sprint(e)
	}
	return out
}

func toRows(v goja.Value) [][]string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	raw, ok := v.Export().([]any)
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(raw))
	for _, row := range raw {
		cells, ok := row.([]any)
		if !ok {
			continue
		}
		r := make([]string, len(cells))
		for i, c := range cells {
			r[i] = fmt.Sprint(c)
		}
		out = append(out, r)
	}
	return out
}
