// Package mesh turns OBJ models into per-material triangle soups and uploads
// them to device-local vertex buffers.
package mesh

import (
	"io"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// Material carries the lighting parameters of one surface type. Albedo
// mirrors Diffuse and Metalness is zero because OBJ/MTL has no PBR terms.
type Material struct {
	Name      string
	Emissive  mgl32.Vec3
	Diffuse   mgl32.Vec3
	Specular  mgl32.Vec3
	Albedo    mgl32.Vec3
	Shininess float32
	Metalness float32
}

// Mesh is a contiguous run of triangles sharing one material.
type Mesh struct {
	Name      string
	Material  int
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2
}

// VertexCount is the number of non-indexed vertices in the mesh.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

type Model struct {
	Name      string
	Materials []Material
	Meshes    []Mesh
}

var defaultMaterial = Material{
	Name:      "default",
	Diffuse:   mgl32.Vec3{0.8, 0.8, 0.8},
	Albedo:    mgl32.Vec3{0.8, 0.8, 0.8},
	Specular:  mgl32.Vec3{0.5, 0.5, 0.5},
	Shininess: 32,
}

// Load decodes an OBJ file and the material library it references.
func Load(path string) (*Model, error) {
	decoder, err := obj.Decode(path, "")
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return FromDecoder(filepath.Base(path), decoder)
}

// LoadReader decodes an OBJ stream with its material library.
func LoadReader(name string, objReader, mtlReader io.Reader) (*Model, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	return FromDecoder(name, decoder)
}

// FromDecoder flattens decoded objects into meshes, one per object and
// material, triangulating polygons as fans.
func FromDecoder(name string, decoder *obj.Decoder) (*Model, error) {
	model := &Model{Name: name}
	materialIndex := make(map[string]int)

	materialFor := func(key string) int {
		if idx, ok := materialIndex[key]; ok {
			return idx
		}
		mat := defaultMaterial
		if src, ok := decoder.Materials[key]; ok && src != nil {
			mat = Material{
				Name:      key,
				Emissive:  mgl32.Vec3{src.Emissive.R, src.Emissive.G, src.Emissive.B},
				Diffuse:   mgl32.Vec3{src.Diffuse.R, src.Diffuse.G, src.Diffuse.B},
				Specular:  mgl32.Vec3{src.Specular.R, src.Specular.G, src.Specular.B},
				Shininess: src.Shininess,
			}
			mat.Albedo = mat.Diffuse
		}
		idx := len(model.Materials)
		model.Materials = append(model.Materials, mat)
		materialIndex[key] = idx
		return idx
	}

	for _, object := range decoder.Objects {
		byMaterial := make(map[int]int)
		for faceIdx, face := range object.Faces {
			if len(face.Vertices) < 3 {
				return nil, errors.Newf("%s: object %q face %d has %d vertices", name, object.Name, faceIdx, len(face.Vertices))
			}
			mat := materialFor(face.Material)
			meshIdx, ok := byMaterial[mat]
			if !ok {
				meshIdx = len(model.Meshes)
				model.Meshes = append(model.Meshes, Mesh{Name: object.Name, Material: mat})
				byMaterial[mat] = meshIdx
			}
			m := &model.Meshes[meshIdx]

			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range [3]int{0, i - 1, i} {
					if err := appendCorner(m, decoder, face, corner); err != nil {
						return nil, errors.Wrapf(err, "%s: object %q face %d", name, object.Name, faceIdx)
					}
				}
			}
		}
	}

	if len(model.Meshes) == 0 {
		return nil, errors.Newf("%s: model has no triangles", name)
	}
	return model, nil
}

func appendCorner(m *Mesh, decoder *obj.Decoder, face obj.Face, corner int) error {
	vi := face.Vertices[corner]
	if vi < 0 || vi*3+2 >= len(decoder.Vertices) {
		return errors.Newf("vertex index %d out of range", vi)
	}
	m.Positions = append(m.Positions, mgl32.Vec3{
		decoder.Vertices[vi*3],
		decoder.Vertices[vi*3+1],
		decoder.Vertices[vi*3+2],
	})

	normal := mgl32.Vec3{}
	if corner < len(face.Normals) {
		if ni := face.Normals[corner]; ni >= 0 && ni*3+2 < len(decoder.Normals) {
			normal = mgl32.Vec3{decoder.Normals[ni*3], decoder.Normals[ni*3+1], decoder.Normals[ni*3+2]}
		}
	}
	m.Normals = append(m.Normals, normal)

	uv := mgl32.Vec2{}
	if corner < len(face.Uvs) {
		if ti := face.Uvs[corner]; ti >= 0 && ti*2+1 < len(decoder.Uvs) {
			uv = mgl32.Vec2{decoder.Uvs[ti*2], decoder.Uvs[ti*2+1]}
		}
	}
	m.TexCoords = append(m.TexCoords, uv)
	return nil
}

// FaceNormals returns one geometric normal per vertex, shared by the three
// corners of each triangle. Degenerate triangles get a zero normal.
func (m *Mesh) FaceNormals() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(m.Positions))
	for i := 0; i+2 < len(m.Positions); i += 3 {
		p0, p1, p2 := m.Positions[i], m.Positions[i+1], m.Positions[i+2]
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		out[i], out[i+1], out[i+2] = n, n, n
	}
	return out
}

// Colors returns the per-vertex color, which is the material's diffuse color.
func (model *Model) Colors(m *Mesh) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(m.Positions))
	c := model.Materials[m.Material].Diffuse
	for i := range out {
		out[i] = c
	}
	return out
}
