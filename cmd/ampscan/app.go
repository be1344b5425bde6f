package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/abel-research/ampscan/pkg/analyse"
	"github.com/abel-research/ampscan/pkg/config"
	"github.com/abel-research/ampscan/pkg/engine"
	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/stl"
)

// App runs scripts and writes their named meshes. It holds no state
// between calls beyond its configuration.
type App struct {
	engine *engine.Engine
	cfg    *config.Config
	outDir string
	log    *slog.Logger

	// IncludeBuffers adds flat render buffers of every named mesh to the
	// report, for viewers that draw the result.
	IncludeBuffers bool
}

// MeshData describes one named mesh of a script result.
type MeshData struct {
	Name          string `json:"name"`
	Vertices      int    `json:"vertices"`
	Faces         int    `json:"faces"`
	BoundaryEdges int    `json:"boundary_edges"`
	File          string `json:"file,omitempty"`

	Buffers *mesh.Buffers `json:"buffers,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the report printed for a script.
type EvalResult struct {
	Meshes       []MeshData           `json:"meshes"`
	Measurements []engine.Measurement `json:"measurements"`
	Errors       []EvalErrorData      `json:"errors"`
}

// NewApp creates an App whose engine is configured from cfg and opts. When
// outDir is set every named mesh is written there as <name>.stl.
func NewApp(cfg *config.Config, outDir string, log *slog.Logger, opts ...engine.Option) (*App, error) {
	eng, err := engine.FromConfig(cfg, log, opts...)
	if err != nil {
		return nil, err
	}
	return &App{engine: eng, cfg: cfg, outDir: outDir, log: log}, nil
}

// Evaluate runs source and returns meshes, measurements and errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:       []MeshData{},
		Measurements: []engine.Measurement{},
		Errors:       []EvalErrorData{},
	}

	// Step 1: Run the script.
	res, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.log.Error("evaluate failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	// Step 2: Convert eval errors to the report format.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}
	result.Measurements = append(result.Measurements, res.Measurements...)

	// Step 3: Describe and optionally write each named mesh.
	for _, name := range res.Names {
		m := res.Mesh(name)
		md := MeshData{
			Name:          name,
			Vertices:      m.VertexCount(),
			Faces:         m.FaceCount(),
			BoundaryEdges: boundaryEdges(m),
		}
		if a.IncludeBuffers {
			md.Buffers = m.Buffers(name)
		}
		if a.outDir != "" {
			md.File = filepath.Join(a.outDir, filepath.Base(name)+".stl")
			if err := stl.WriteFile(md.File, m, name); err != nil {
				result.Errors = append(result.Errors, EvalErrorData{
					Message: fmt.Sprintf("writing %s: %v", name, err),
				})
				return result
			}
			a.log.Info("wrote mesh", "name", name, "file", md.File)
		}
		result.Meshes = append(result.Meshes, md)
	}
	return result
}

// EvaluateFile runs the script stored at path.
func (a *App) EvaluateFile(path string) (EvalResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return EvalResult{}, err
	}
	return a.Evaluate(string(src)), nil
}

// Stat slices the STL file at path with the configured slice positions and
// reports its sections together with its hole-closed volume.
func (a *App) Stat(ctx context.Context, path string) (*analyse.Summary, error) {
	m, err := stl.ReadFile(path)
	if err != nil {
		return nil, err
	}
	axis, ps, err := a.cfg.SliceSpec()
	if err != nil {
		return nil, err
	}
	return analyse.Summarise(ctx, m, analyse.SummaryOptions{
		Axis:      axis,
		Positions: ps,
		Closed:    true,
		CloseIter: a.cfg.Close.MaxIter,
	})
}

func boundaryEdges(m *mesh.Mesh) int {
	if len(m.EdgeFaces) != len(m.Edges) {
		return 0
	}
	return len(m.BoundaryEdges())
}
