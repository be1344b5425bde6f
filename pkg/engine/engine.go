// Package engine runs ampscan processing scripts. It wraps zygomys in a
// sandboxed environment whose builtins load, generate, align, register,
// trim and measure meshes, and collects the named meshes and measurements
// a script produces.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abel-research/ampscan/pkg/analyse"
	"github.com/abel-research/ampscan/pkg/config"
	"github.com/abel-research/ampscan/pkg/kernel"
	"github.com/abel-research/ampscan/pkg/kernel/sdfx"
	"github.com/abel-research/ampscan/pkg/mesh"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Measurement is one number or slice summary recorded by a script.
type Measurement struct {
	Label   string           `json:"label"`
	Kind    string           `json:"kind"`
	Value   float64          `json:"value"`
	Summary *analyse.Summary `json:"summary,omitempty"`
}

// Result is the output of a script: the meshes it named with defmesh, in
// definition order, and its measurements in the order they were taken.
type Result struct {
	Names        []string              `json:"meshes"`
	Meshes       map[string]*mesh.Mesh `json:"-"`
	Measurements []Measurement         `json:"measurements"`
}

func newResult() *Result {
	return &Result{Meshes: make(map[string]*mesh.Mesh)}
}

// Mesh returns the mesh defined under name, or nil.
func (r *Result) Mesh(name string) *mesh.Mesh {
	return r.Meshes[name]
}

func (r *Result) define(name string, m *mesh.Mesh) {
	if _, ok := r.Meshes[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Meshes[name] = m
}

func (r *Result) record(m Measurement) {
	r.Measurements = append(r.Measurements, m)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the processing defaults builtins start from.
func WithConfig(c *config.Config) Option {
	return func(e *Engine) { e.cfg = c }
}

// WithTimeout sets the hard limit for a single evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithIO enables the load and save builtins.
func WithIO(allow bool) Option {
	return func(e *Engine) { e.allowIO = allow }
}

// WithKernel sets the solid kernel used for phantoms.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) { e.kernel = k }
}

// WithLogger sets the logger handed to the processing packages. A nil
// logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate creates a fresh sandboxed environment for determinism,
// and a newer call supersedes any still running.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	cfg     *config.Config
	timeout time.Duration
	allowIO bool
	kernel  kernel.Kernel
	log     *slog.Logger
}

// NewEngine creates an Engine with default config, the sdfx kernel, file
// access disabled and a DefaultTimeout limit.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg:     config.Default(),
		timeout: DefaultTimeout,
		kernel:  sdfx.New(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FromConfig creates an Engine whose timeout, file access and defaults
// come from c. Further options are applied after those.
func FromConfig(c *config.Config, log *slog.Logger, opts ...Option) (*Engine, error) {
	d, err := c.Timeout()
	if err != nil {
		return nil, err
	}
	base := []Option{WithConfig(c), WithTimeout(d), WithIO(c.Engine.AllowIO), WithLogger(log)}
	return NewEngine(append(base, opts...)...), nil
}

// Evaluate runs a script with a background context.
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext runs a script. Each call creates a fresh zygomys sandbox
// for deterministic evaluation. The context is handed to long running
// builtins and cancelled when the evaluation times out.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*Result, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res, evalErrs, err := e.evaluate(ctx, source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ctx, ch, gen, &e.mu, &e.generation, e.timeout)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(ctx context.Context, source string) (*Result, []EvalError, error) {
	// Empty source is a valid program that produces an empty result.
	if strings.TrimSpace(source) == "" {
		return newResult(), nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or
	// syscalls; load and save are separate builtins gated by allowIO.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	s := &session{
		ctx:     ctx,
		res:     newResult(),
		cfg:     e.cfg,
		kernel:  e.kernel,
		log:     e.log,
		allowIO: e.allowIO,
	}
	registerBuiltins(env, s)

	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}
	return s.res, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
