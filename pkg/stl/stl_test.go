package stl

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tetra returns a binary STL of a unit tetrahedron written record by
// record, with a header that starts with "solid".
func tetra(t *testing.T) []byte {
	t.Helper()
	p := [4][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	faces := [][3]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}}

	var buf bytes.Buffer
	var header [80]byte
	copy(header[:], "solid tetra")
	buf.Write(header[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(faces))))
	for _, f := range faces {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, [3]float32{}))
		for _, v := range f {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, p[v]))
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(0)))
	}
	return buf.Bytes()
}

func TestReadTetra(t *testing.T) {
	m, err := Read(bytes.NewReader(tetra(t)))
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertexCount())
	assert.Equal(t, 4, m.FaceCount())
	assert.Len(t, m.Edges, 6)
	assert.Empty(t, m.BoundaryEdges())
}

func TestRoundTrip(t *testing.T) {
	s, err := primitive.Sphere(1, 8, 16)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, "sphere"))
	assert.Equal(t, 84+50*s.FaceCount(), buf.Len())

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.VertexCount(), got.VertexCount())
	assert.Equal(t, s.FaceCount(), got.FaceCount())
	assert.InDelta(t, s.Bounds().Max.Z, got.Bounds().Max.Z, 1e-6)
}

func TestFileRoundTrip(t *testing.T) {
	s, err := primitive.Tube(1, 2, 3, 12)
	require.NoError(t, err)
	name := filepath.Join(t.TempDir(), "tube.stl")
	require.NoError(t, WriteFile(name, s, ""))

	got, err := ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, s.FaceCount(), got.FaceCount())
	assert.Len(t, got.BoundaryEdges(), 24)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.stl"))
	assert.Error(t, err)
}

func TestReadErrors(t *testing.T) {
	data := tetra(t)

	_, err := Read(bytes.NewReader(data[:len(data)-10]))
	assert.ErrorIs(t, err, mesh.ErrCorrupt)

	_, err = Read(bytes.NewReader(make([]byte, 40)))
	assert.ErrorIs(t, err, mesh.ErrCorrupt)

	ascii := "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nvertex 0 1 0\nendloop\nendfacet\nendsolid x\n"
	_, err = Read(bytes.NewReader([]byte(ascii)))
	assert.ErrorIs(t, err, ErrASCII)
}
