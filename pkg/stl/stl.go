// Package stl reads and writes binary STL files, the format scanners and
// CAD tools exchange limb and socket surfaces in.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrASCII is returned for ASCII STL input, which is not supported.
var ErrASCII = errors.New("ascii stl is not supported")

const (
	headerSize = 80
	recordSize = 50
)

// Read decodes a binary STL stream into a unified mesh.
func Read(r io.Reader) (*mesh.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	if len(data) < headerSize+4 {
		if ascii(data) {
			return nil, ErrASCII
		}
		return nil, fmt.Errorf("read stl: %d byte file: %w", len(data), mesh.ErrCorrupt)
	}

	n := int(binary.LittleEndian.Uint32(data[headerSize:]))
	body := data[headerSize+4:]
	if len(body) != n*recordSize {
		// A binary header may legitimately start with "solid", so the
		// text is only inspected once the sizes disagree.
		if ascii(data) {
			return nil, ErrASCII
		}
		return nil, fmt.Errorf("read stl: header states %d triangles, body holds %d bytes: %w",
			n, len(body), mesh.ErrCorrupt)
	}

	verts := make([]r3.Vec, 0, 3*n)
	normals := make([]r3.Vec, 0, n)
	for i := 0; i < n; i++ {
		rec := body[i*recordSize:]
		normals = append(normals, vec(rec))
		for v := 0; v < 3; v++ {
			verts = append(verts, vec(rec[12+12*v:]))
		}
	}
	m, err := mesh.Build(verts, nil, normals)
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	return m, nil
}

// ascii reports whether data opens like an ASCII STL solid.
func ascii(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("solid")) {
		return false
	}
	head := data[:min(len(data), 512)]
	return bytes.Contains(head, []byte("facet")) || bytes.Contains(head, []byte("endsolid"))
}

func vec(b []byte) r3.Vec {
	f := func(o int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[o:])))
	}
	return r3.Vec{X: f(0), Y: f(4), Z: f(8)}
}

// ReadFile opens and decodes the named binary STL file.
func ReadFile(name string) (*mesh.Mesh, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// Write encodes m as binary STL. The header is truncated or space padded
// to 80 bytes. Face normals are recomputed when missing.
func Write(w io.Writer, m *mesh.Mesh, header string) error {
	normals := m.FaceNormals
	if len(normals) != len(m.Faces) {
		c := &mesh.Mesh{Vertices: m.Vertices, Faces: m.Faces}
		c.CalcNorm()
		normals = c.FaceNormals
	}

	bw := bufio.NewWriter(w)
	var h [headerSize]byte
	copy(h[:], bytes.Repeat([]byte{' '}, headerSize))
	copy(h[:], header)
	if _, err := bw.Write(h[:]); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}

	var rec [recordSize]byte
	put := func(o int, v r3.Vec) {
		binary.LittleEndian.PutUint32(rec[o:], math.Float32bits(float32(v.X)))
		binary.LittleEndian.PutUint32(rec[o+4:], math.Float32bits(float32(v.Y)))
		binary.LittleEndian.PutUint32(rec[o+8:], math.Float32bits(float32(v.Z)))
	}
	for f := range m.Faces {
		a, b, c := m.Corners(f)
		put(0, normals[f])
		put(12, a)
		put(24, b)
		put(36, c)
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("write stl: face %d: %w", f, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	return nil
}

// WriteFile writes m to the named file, replacing it if it exists.
func WriteFile(name string, m *mesh.Mesh, header string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := Write(f, m, header); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	return f.Close()
}
