// Package config loads the processing defaults shared by the command and
// the scripting engine. A Config only carries names and numbers; the
// library packages take their own option structs, which Config builds.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abel-research/ampscan/pkg/align"
	"github.com/abel-research/ampscan/pkg/analyse"
	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/registration"
	"github.com/abel-research/ampscan/pkg/smooth"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrFormat is returned for a config file whose extension names no known
// format.
var ErrFormat = errors.New("unknown config format")

// Format names a config file syntax.
type Format int

const (
	YAML Format = iota
	TOML
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrFormat, filepath.Ext(path))
}

// Config is the full set of processing defaults.
type Config struct {
	Align        Align        `yaml:"align" toml:"align"`
	Registration Registration `yaml:"registration" toml:"registration"`
	Smooth       Smooth       `yaml:"smooth" toml:"smooth"`
	Slice        Slice        `yaml:"slice" toml:"slice"`
	Close        Close        `yaml:"close" toml:"close"`
	Engine       Engine       `yaml:"engine" toml:"engine"`
	Log          Log          `yaml:"log" toml:"log"`
}

type Align struct {
	Method     string  `yaml:"method" toml:"method"`
	MaxIter    int     `yaml:"max_iter" toml:"max_iter"`
	Inlier     float64 `yaml:"inlier" toml:"inlier"`
	Inverse    bool    `yaml:"inverse" toml:"inverse"`
	Optimizer  string  `yaml:"optimizer" toml:"optimizer"`
	Bounded    bool    `yaml:"bounded" toml:"bounded"`
	Neighbours int     `yaml:"neighbours" toml:"neighbours"`
}

type Registration struct {
	Steps      int     `yaml:"steps" toml:"steps"`
	Neighbours int     `yaml:"neighbours" toml:"neighbours"`
	Smooth     int     `yaml:"smooth" toml:"smooth"`
	Beta       float64 `yaml:"beta" toml:"beta"`
	FixBrim    bool    `yaml:"fix_brim" toml:"fix_brim"`
	// ScaleBelow is unset unless the file names it.
	ScaleBelow *float64 `yaml:"scale_below,omitempty" toml:"scale_below,omitempty"`
	Error      string   `yaml:"error" toml:"error"`
}

type Smooth struct {
	Method          string  `yaml:"method" toml:"method"`
	Iterations      int     `yaml:"iterations" toml:"iterations"`
	Beta            float64 `yaml:"beta" toml:"beta"`
	ExcludeBoundary bool    `yaml:"exclude_boundary" toml:"exclude_boundary"`
}

type Slice struct {
	Axis   string    `yaml:"axis" toml:"axis"`
	Mode   string    `yaml:"mode" toml:"mode"`
	Planes []float64 `yaml:"planes,omitempty" toml:"planes,omitempty"`
	Start  float64   `yaml:"start" toml:"start"`
	End    float64   `yaml:"end" toml:"end"`
	Step   float64   `yaml:"step" toml:"step"`
}

type Close struct {
	MaxIter int `yaml:"max_iter" toml:"max_iter"`
}

type Engine struct {
	// Timeout is a Go duration string such as "30s".
	Timeout string `yaml:"timeout" toml:"timeout"`
	// AllowIO lets scripts load and save STL files.
	AllowIO bool `yaml:"allow_io" toml:"allow_io"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the defaults of every library package, with slices every
// tenth of the z extent and a 30 second script timeout.
func Default() *Config {
	ao := align.DefaultOptions()
	ro := registration.DefaultOptions()
	so := smooth.DefaultOptions()
	return &Config{
		Align: Align{
			Method:     ao.Method.String(),
			MaxIter:    ao.MaxIter,
			Inlier:     ao.Inlier,
			Optimizer:  ao.Optimizer.String(),
			Neighbours: ao.Neighbours,
		},
		Registration: Registration{
			Steps:      ro.Steps,
			Neighbours: ro.Neighbours,
			Smooth:     ro.Smooth,
			Beta:       ro.Beta,
			Error:      ro.Error.String(),
		},
		Smooth: Smooth{
			Method:          so.Method.String(),
			Iterations:      so.Iterations,
			Beta:            so.Beta,
			ExcludeBoundary: so.ExcludeBoundary,
		},
		Slice: Slice{Axis: "z", Mode: analyse.NormIntervals.String(), Start: 0, End: 1, Step: 0.1},
		Close: Close{MaxIter: analyse.DefaultCloseIterations},
		Engine: Engine{Timeout: "30s"},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load overlays the named YAML or TOML file on the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse overlays data on the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	c := Default()
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case TOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrFormat, format)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write encodes c in the given format.
func (c *Config) Write(w io.Writer, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	case TOML:
		return toml.NewEncoder(w).Encode(c)
	}
	return fmt.Errorf("%w: %d", ErrFormat, format)
}

// Validate checks every section by building its options.
func (c *Config) Validate() error {
	if _, err := c.AlignOptions(); err != nil {
		return fmt.Errorf("config: align: %w", err)
	}
	if _, err := c.RegistrationOptions(); err != nil {
		return fmt.Errorf("config: registration: %w", err)
	}
	if _, err := c.SmoothOptions(); err != nil {
		return fmt.Errorf("config: smooth: %w", err)
	}
	if _, _, err := c.SliceSpec(); err != nil {
		return fmt.Errorf("config: slice: %w", err)
	}
	if c.Close.MaxIter < 1 {
		return fmt.Errorf("config: close: max_iter must be at least 1, got %d", c.Close.MaxIter)
	}
	if _, err := c.Timeout(); err != nil {
		return fmt.Errorf("config: engine: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("config: log: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log: format %q, expected text or json", c.Log.Format)
	}
	return nil
}

// AlignOptions builds align.Options from the align section.
func (c *Config) AlignOptions() (align.Options, error) {
	o := align.DefaultOptions()
	var err error
	if o.Method, err = align.ParseMethod(c.Align.Method); err != nil {
		return o, err
	}
	if o.Optimizer, err = align.ParseOptimizer(c.Align.Optimizer); err != nil {
		return o, err
	}
	if c.Align.Inlier <= 0 || c.Align.Inlier > 1 {
		return o, fmt.Errorf("inlier %g outside (0, 1]", c.Align.Inlier)
	}
	if c.Align.MaxIter < 0 {
		return o, fmt.Errorf("negative max_iter %d", c.Align.MaxIter)
	}
	if c.Align.Neighbours < 1 {
		return o, fmt.Errorf("neighbours must be at least 1, got %d", c.Align.Neighbours)
	}
	o.MaxIter = c.Align.MaxIter
	o.Inlier = c.Align.Inlier
	o.Inverse = c.Align.Inverse
	o.Bounded = c.Align.Bounded
	o.Neighbours = c.Align.Neighbours
	return o, nil
}

// RegistrationOptions builds registration.Options from the registration
// section.
func (c *Config) RegistrationOptions() (registration.Options, error) {
	r := c.Registration
	o := registration.DefaultOptions()
	var err error
	if o.Error, err = registration.ParseErrorMethod(r.Error); err != nil {
		return o, err
	}
	if r.Steps < 1 {
		return o, fmt.Errorf("steps must be at least 1, got %d", r.Steps)
	}
	if r.Neighbours < 1 {
		return o, fmt.Errorf("neighbours must be at least 1, got %d", r.Neighbours)
	}
	if r.Smooth < 0 {
		return o, fmt.Errorf("negative smooth %d", r.Smooth)
	}
	if r.Beta < 0 || r.Beta > 1 {
		return o, fmt.Errorf("beta %g outside [0, 1]", r.Beta)
	}
	o.Steps = r.Steps
	o.Neighbours = r.Neighbours
	o.Smooth = r.Smooth
	o.Beta = r.Beta
	o.FixBrim = r.FixBrim
	o.ScaleBelow = r.ScaleBelow
	return o, nil
}

// SmoothOptions builds smooth.Options from the smooth section.
func (c *Config) SmoothOptions() (smooth.Options, error) {
	s := c.Smooth
	m, err := smooth.ParseMethod(s.Method)
	if err != nil {
		return smooth.Options{}, err
	}
	if s.Iterations < 0 {
		return smooth.Options{}, fmt.Errorf("negative iterations %d", s.Iterations)
	}
	if s.Beta < 0 || s.Beta > 1 {
		return smooth.Options{}, fmt.Errorf("beta %g outside [0, 1]", s.Beta)
	}
	return smooth.Options{Method: m, Iterations: s.Iterations, Beta: s.Beta, ExcludeBoundary: s.ExcludeBoundary}, nil
}

// SliceSpec returns the slicing axis and plane description.
func (c *Config) SliceSpec() (geom.Axis, analyse.PositionSpec, error) {
	s := c.Slice
	axis, err := geom.ParseAxis(s.Axis)
	if err != nil {
		return 0, analyse.PositionSpec{}, err
	}
	mode, err := analyse.ParsePositionMode(s.Mode)
	if err != nil {
		return 0, analyse.PositionSpec{}, err
	}
	ps := analyse.PositionSpec{Mode: mode, Planes: s.Planes, Start: s.Start, End: s.End, Step: s.Step}
	if mode == analyse.Explicit {
		if len(s.Planes) == 0 {
			return 0, ps, errors.New("explicit mode needs planes")
		}
	} else if !(s.Step > 0) || s.End < s.Start {
		return 0, ps, fmt.Errorf("interval [%g, %g] step %g", s.Start, s.End, s.Step)
	}
	return axis, ps, nil
}

// Timeout parses the engine timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout %s must be positive", d)
	}
	return d, nil
}

// Level parses the log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.Log.Level))
	return l, err
}

// Logger returns a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
