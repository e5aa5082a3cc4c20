package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
)

func compiledTracker(t *testing.T) *ExecTracker {
	t.Helper()
	tracker := NewExecTracker()
	tracker.To(StateCompiling)
	tracker.To(StateCompiled)
	return tracker
}

func runScript(t *testing.T, host *Host, source string, execCtx *ExecutionContext) (*ExecutionResult, []string) {
	t.Helper()
	prog, serr := compileSource(source)
	require.Nil(t, serr, "unexpected compile error: %v", serr)
	return host.Run(context.Background(), prog, execCtx, compiledTracker(t))
}

func newTestHost() *Host {
	return NewHost(DefaultConfig(), logging.NewNop(), nil)
}

func TestRunBasicArithmetic(t *testing.T) {
	res, _ := runScript(t, newTestHost(), "return 2 + 2;", &ExecutionContext{})

	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 4, res.Value)
	assert.Equal(t, StateSucceeded, res.State)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, 0.0)
}

func TestRunContextAccess(t *testing.T) {
	execCtx := &ExecutionContext{Values: map[string]any{"weight": 3.5}}
	res, _ := runScript(t, newTestHost(), "return me.getValue('weight') * 2;", execCtx)

	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 7, res.Value)
}

func TestRunMissingContextKey(t *testing.T) {
	res, _ := runScript(t, newTestHost(), "return me.getValue('missing');", &ExecutionContext{})

	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 0, res.Value)
}

func TestGetValueNeverThrows(t *testing.T) {
	host := newTestHost()
	scripts := []string{
		"return me.getValue('');",
		"return me.getValue(null);",
		"return me.getValue(undefined);",
		"return me.getValue();",
		"return me.getValue('never-seen-before');",
	}
	for _, src := range scripts {
		res, _ := runScript(t, host, src, &ExecutionContext{Values: map[string]any{}})
		require.True(t, res.OK(), "script %q errored: %s", src, res.ErrorMessage)
		assert.EqualValues(t, 0, res.Value, "script %q", src)
	}
}

func TestGetValueResolutionOrder(t *testing.T) {
	execCtx := &ExecutionContext{
		Values:  map[string]any{"dose": 5.0},
		Objects: map[string]map[string]any{"patient": {"age": 3.0}},
	}
	host := newTestHost()

	res, _ := runScript(t, host, "return me.getValue('dose');", execCtx)
	require.True(t, res.OK())
	assert.EqualValues(t, 5, res.Value)

	// Object-valued entries resolve after direct values.
	res, _ = runScript(t, host, "return me.getValue('patient').age;", execCtx)
	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 3, res.Value)
}

func TestRunDeterminism(t *testing.T) {
	host := newTestHost()
	execCtx := &ExecutionContext{Values: map[string]any{"weight": 12.0}}
	src := "return roundTo(me.getValue('weight') * 1.5, 1);"

	first, _ := runScript(t, host, src, execCtx)
	second, _ := runScript(t, host, src, execCtx)

	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, first.Value, second.Value)
}

func TestRunStructuralIsolation(t *testing.T) {
	host := newTestHost()
	scripts := []string{
		"return document.title;",
		"return process.exit(1);",
		"return require('fs');",
		"return fetch('http://example.com');",
		"return globalThisDoesNotExist;",
	}
	for _, src := range scripts {
		res, _ := runScript(t, host, src, &ExecutionContext{})
		require.False(t, res.OK(), "script %q should have failed", src)
		assert.Equal(t, ErrKindRuntime, res.ErrorKind, "script %q", src)
		assert.Contains(t, res.ErrorMessage, "ReferenceError", "script %q", src)
		assert.Equal(t, StateFailed, res.State)
	}
}

func TestRunRuntimeErrorIsData(t *testing.T) {
	res, _ := runScript(t, newTestHost(), "throw new Error('boom');", &ExecutionContext{})

	require.False(t, res.OK())
	assert.Equal(t, ErrKindRuntime, res.ErrorKind)
	assert.Contains(t, res.ErrorMessage, "boom")
	assert.NotEmpty(t, res.StackSummary)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, 0.0)
}

func TestRunTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deadline = 100 * time.Millisecond
	host := NewHost(cfg, logging.NewNop(), nil)

	start := time.Now()
	res, _ := runScript(t, host, "while (true) {}", &ExecutionContext{})
	elapsed := time.Since(start)

	require.False(t, res.OK())
	assert.Equal(t, ErrKindTimeout, res.ErrorKind)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Less(t, elapsed, 2*time.Second, "timeout must fire within deadline plus bounded overhead")

	// The host remains usable for the next call.
	res, _ = runScript(t, host, "return 1;", &ExecutionContext{})
	require.True(t, res.OK())
	assert.EqualValues(t, 1, res.Value)
}

func TestRunCancellation(t *testing.T) {
	host := newTestHost()
	prog, serr := compileSource("while (true) {}")
	require.Nil(t, serr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, _ := host.Run(ctx, prog, &ExecutionContext{}, compiledTracker(t))
	require.False(t, res.OK())
	assert.Equal(t, ErrKindRuntime, res.ErrorKind)
	assert.Equal(t, StateFailed, res.State)
}

func TestRunConsoleCapture(t *testing.T) {
	src := `
		console.log('starting', 42);
		console.warn('check dose');
		return 'done';
	`
	res, console := runScript(t, newTestHost(), src, &ExecutionContext{})

	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.Equal(t, "done", res.Value)
	require.Len(t, console, 2)
	assert.Equal(t, "starting 42", console[0])
	assert.Equal(t, "[warn] check dose", console[1])
}

func TestRunConsoleDeliveredOnFailure(t *testing.T) {
	src := `
		console.log('before the crash');
		throw new Error('late failure');
	`
	res, console := runScript(t, newTestHost(), src, &ExecutionContext{})

	require.False(t, res.OK())
	require.Len(t, console, 1)
	assert.Equal(t, "before the crash", console[0])
}

func TestRunHelperLibrary(t *testing.T) {
	host := newTestHost()
	tests := []struct {
		name   string
		script string
		want   any
	}{
		{"roundTo", "return roundTo(3.14159, 2);", 3.14},
		{"formatNumber", "return formatNumber(2.5, 2);", "2.50"},
		{"choose", "return choose(me.getValue('weight') > 10, 'big', 'small');", "big"},
		{"pluralize", "return pluralize(2, 'dose', 'doses');", "doses"},
		{"classifyRange", "return classifyRange(15, 2, 4, 10, 20);", "high"},
		{"bold", "return bold('hi');", "<b>hi</b>"},
		{"htmlList", "return htmlList(['a', 'b'], false);", "<ul><li>a</li><li>b</li></ul>"},
	}

	execCtx := &ExecutionContext{Values: map[string]any{"weight": 12.0}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := runScript(t, host, tt.script, execCtx)
			require.True(t, res.OK(), "error: %s", res.ErrorMessage)
			assert.EqualValues(t, tt.want, res.Value)
		})
	}
}

func TestRunHelperOutputIsSanitized(t *testing.T) {
	res, _ := runScript(t, newTestHost(),
		`return bold('<script>alert(1)</script>');`, &ExecutionContext{})

	require.True(t, res.OK())
	assert.NotContains(t, res.Value, "<script>")
}

func TestRunDosingWrappers(t *testing.T) {
	host := newTestHost()
	execCtx := &ExecutionContext{Values: map[string]any{"weight": 8.0, "height": 70.0}}

	res, _ := runScript(t, host, "return me.getBaseRequirements().fluidML;", execCtx)
	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 800, res.Value)

	res, _ = runScript(t, host, "return me.getBaseRequirements(15).fluidML;", execCtx)
	require.True(t, res.OK())
	assert.EqualValues(t, 1250, res.Value)

	res, _ = runScript(t, host, "return me.computeDerivedQuantity('bsa');", execCtx)
	require.True(t, res.OK())
	assert.InDelta(t, 0.394, asFloat(res.Value), 0.01)

	res, _ = runScript(t, host, "return me.convertUnit(2, 'g', 'mg');", execCtx)
	require.True(t, res.OK())
	assert.EqualValues(t, 2000, res.Value)
}

func TestRunExtensions(t *testing.T) {
	host := newTestHost()
	execCtx := &ExecutionContext{
		Values: map[string]any{"weight": 6.0},
		Extensions: []Extension{
			{Name: "double", Body: "return arguments[0] * 2;", AuthorDefined: true},
			{Name: "weightPlus", Body: "return this.getValue('weight') + arguments[0];", AuthorDefined: true},
		},
	}

	res, _ := runScript(t, host, "return double(21);", execCtx)
	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 42, res.Value)

	// `this` inside an extension resolves to the context accessor.
	res, _ = runScript(t, host, "return weightPlus(4);", execCtx)
	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 10, res.Value)
}

func TestRunMalformedExtensionIsOmitted(t *testing.T) {
	metrics := NewMetrics()
	host := NewHost(DefaultConfig(), logging.NewNop(), metrics)
	execCtx := &ExecutionContext{
		Values: map[string]any{"weight": 6.0},
		Extensions: []Extension{
			{Name: "broken", Body: "return ((", AuthorDefined: true},
			{Name: "double", Body: "return arguments[0] * 2;", AuthorDefined: true},
		},
	}

	// An unrelated script in the same call still executes successfully.
	res, _ := runScript(t, host, "return double(3);", execCtx)
	require.True(t, res.OK(), "error: %s", res.ErrorMessage)
	assert.EqualValues(t, 6, res.Value)

	snap := metrics.Snapshot(CacheStats{})
	assert.Equal(t, uint64(1), snap.OmittedExtensions)

	// Calling the omitted extension is an ordinary ReferenceError.
	res, _ = runScript(t, host, "return broken();", execCtx)
	require.False(t, res.OK())
	assert.Equal(t, ErrKindRuntime, res.ErrorKind)
}

func TestRunExecutionTimeAlwaysSet(t *testing.T) {
	host := newTestHost()

	ok, _ := runScript(t, host, "return 1;", &ExecutionContext{})
	failed, _ := runScript(t, host, "throw new Error('x');", &ExecutionContext{})

	assert.GreaterOrEqual(t, ok.ExecutionTimeMs, 0.0)
	assert.GreaterOrEqual(t, failed.ExecutionTimeMs, 0.0)
}
