package voximport

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gekko3d/voxelcore/voxel"
)

const paletteSize = 256

// Data is the parsed contents of one .vox file: its voxel models, scene
// graph, layers, materials and palette.
type Data struct {
	Models     []Model
	SceneGraph map[int32]*Node
	Layers     []Layer
	Materials  map[int32]Material
	Palette    [paletteSize]Color8
	RootNodeID int32 // -1 if the file carries no scene graph
}

// Load parses a MagicaVoxel file from r, which is consumed sequentially
// (no seeking back).
func Load(r io.Reader) (*Data, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("voximport: reading magic: %w", err)
	}
	if string(magic[:]) != "VOX " {
		return nil, fmt.Errorf("voximport: not a .vox file (bad magic %q)", magic)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("voximport: reading version: %w", err)
	}
	if version != 150 {
		return nil, fmt.Errorf("voximport: unsupported .vox version %d (want 150)", version)
	}

	d := &Data{
		SceneGraph: make(map[int32]*Node),
		Materials:  make(map[int32]Material),
		RootNodeID: -1,
	}
	d.Palette[0] = Color8{}
	for i := 1; i < paletteSize; i++ {
		d.Palette[i] = defaultPalette[i]
	}

	var lastSize voxel.IVec3
	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("voximport: reading chunk id: %w", err)
		}
		var chunkSize, childChunksSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("voximport: reading chunk size: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &childChunksSize); err != nil {
			return nil, fmt.Errorf("voximport: reading child chunk size: %w", err)
		}

		body := io.LimitReader(r, int64(chunkSize))
		var err error
		switch string(chunkID[:]) {
		case "SIZE":
			lastSize, err = readSize(body)
		case "XYZI":
			err = d.readModel(body, lastSize)
		case "RGBA":
			err = d.readPalette(body)
		case "nTRN":
			err = d.readTransform(body)
		case "nGRP":
			err = d.readGroup(body)
		case "nSHP":
			err = d.readShape(body)
		case "LAYR":
			err = d.readLayer(body)
		case "MATL":
			err = d.readMaterial(body)
		default:
			_, err = io.Copy(io.Discard, body)
		}
		if err != nil {
			return nil, fmt.Errorf("voximport: chunk %q: %w", chunkID, err)
		}
		// Discard whatever the handler above didn't consume, so a short
		// read never desyncs the next chunk header.
		if _, err := io.Copy(io.Discard, body); err != nil {
			return nil, fmt.Errorf("voximport: chunk %q: draining trailer: %w", chunkID, err)
		}
	}

	if err := d.validateSceneGraph(); err != nil {
		return nil, err
	}
	return d, nil
}

func readSize(r io.Reader) (voxel.IVec3, error) {
	var x, y, z uint32
	for _, p := range []*uint32{&x, &y, &z} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return voxel.IVec3{}, err
		}
	}
	if x > 256 || y > 256 || z > 256 {
		return voxel.IVec3{}, fmt.Errorf("model dimension exceeds 256 (%d,%d,%d)", x, y, z)
	}
	return magicaToEngine(voxel.IVec3{X: int32(x), Y: int32(y), Z: int32(z)}), nil
}

func (d *Data) readModel(r io.Reader, size voxel.IVec3) error {
	var numVoxels uint32
	if err := binary.Read(r, binary.LittleEndian, &numVoxels); err != nil {
		return err
	}
	model := Model{Size: size, ColorIndex: make([]byte, int64(size.X)*int64(size.Y)*int64(size.Z))}
	var rec [4]byte
	for i := uint32(0); i < numVoxels; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return err
		}
		pos := magicaToEngine(voxel.IVec3{X: int32(rec[0]), Y: int32(rec[1]), Z: int32(rec[2])})
		if pos.X < 0 || pos.X >= size.X || pos.Y < 0 || pos.Y >= size.Y || pos.Z < 0 || pos.Z >= size.Z {
			return fmt.Errorf("voxel position %v out of model bounds %v", pos, size)
		}
		model.ColorIndex[zxyIndex(pos, size)] = rec[3]
	}
	d.Models = append(d.Models, model)
	return nil
}

func (d *Data) readPalette(r io.Reader) error {
	d.Palette[0] = Color8{}
	var c [4]byte
	for i := 1; i < paletteSize; i++ {
		if _, err := io.ReadFull(r, c[:]); err != nil {
			return err
		}
		d.Palette[i] = Color8{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return "", err
	}
	if size < 0 || size > 4096 {
		return "", fmt.Errorf("invalid string length %d", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readDict(r io.Reader) (map[string]string, error) {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count < 0 || count > 256 {
		return nil, fmt.Errorf("invalid dictionary item count %d", count)
	}
	dict := make(map[string]string, count)
	for i := int32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readString(r)
		if err != nil {
			return nil, err
		}
		dict[key] = value
	}
	return dict, nil
}

func (d *Data) readNodeHeader(r io.Reader) (int32, map[string]string, error) {
	var id int32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return 0, nil, err
	}
	if _, exists := d.SceneGraph[id]; exists {
		return 0, nil, fmt.Errorf("node with id %d already exists", id)
	}
	attrs, err := readDict(r)
	if err != nil {
		return 0, nil, err
	}
	return id, attrs, nil
}

func (d *Data) readTransform(r io.Reader) error {
	id, attrs, err := d.readNodeHeader(r)
	if err != nil {
		return err
	}
	node := &Node{Type: NodeTransform, ID: id, Attributes: attrs}
	node.Name = attrs["_name"]
	node.Hidden = attrs["_hidden"] == "1"

	if err := binary.Read(r, binary.LittleEndian, &node.ChildID); err != nil {
		return err
	}
	var reservedID int32
	if err := binary.Read(r, binary.LittleEndian, &reservedID); err != nil {
		return err
	}
	if reservedID != -1 {
		return fmt.Errorf("transform node %d: reserved field must be -1, got %d", id, reservedID)
	}
	if err := binary.Read(r, binary.LittleEndian, &node.LayerID); err != nil {
		return err
	}
	var frameCount int32
	if err := binary.Read(r, binary.LittleEndian, &frameCount); err != nil {
		return err
	}
	if frameCount != 1 {
		return fmt.Errorf("transform node %d: expected exactly one frame, got %d", id, frameCount)
	}
	frame, err := readDict(r)
	if err != nil {
		return err
	}
	if t, ok := frame["_t"]; ok {
		parts := strings.Fields(t)
		if len(parts) < 3 {
			return fmt.Errorf("transform node %d: malformed _t %q", id, t)
		}
		var coords [3]int64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				return fmt.Errorf("transform node %d: malformed _t coordinate %q: %w", id, parts[i], err)
			}
			coords[i] = int64(v)
		}
		node.Position = magicaToEngine(voxel.IVec3{X: int32(coords[0]), Y: int32(coords[1]), Z: int32(coords[2])})
	}
	if rStr, ok := frame["_r"]; ok {
		packed, err := strconv.Atoi(rStr)
		if err != nil {
			return fmt.Errorf("transform node %d: malformed _r %q: %w", id, rStr, err)
		}
		node.HasRotation = true
		node.Rotation = parseBasis(byte(packed))
	}
	d.SceneGraph[id] = node
	return nil
}

func (d *Data) readGroup(r io.Reader) error {
	id, attrs, err := d.readNodeHeader(r)
	if err != nil {
		return err
	}
	node := &Node{Type: NodeGroup, ID: id, Attributes: attrs}
	var childCount uint32
	if err := binary.Read(r, binary.LittleEndian, &childCount); err != nil {
		return err
	}
	if childCount > 65536 {
		return fmt.Errorf("group node %d: implausible child count %d", id, childCount)
	}
	node.ChildIDs = make([]int32, childCount)
	for i := range node.ChildIDs {
		if err := binary.Read(r, binary.LittleEndian, &node.ChildIDs[i]); err != nil {
			return err
		}
	}
	d.SceneGraph[id] = node
	return nil
}

func (d *Data) readShape(r io.Reader) error {
	id, attrs, err := d.readNodeHeader(r)
	if err != nil {
		return err
	}
	node := &Node{Type: NodeShape, ID: id, Attributes: attrs}
	var modelCount uint32
	if err := binary.Read(r, binary.LittleEndian, &modelCount); err != nil {
		return err
	}
	if modelCount != 1 {
		return fmt.Errorf("shape node %d: expected exactly one model reference, got %d", id, modelCount)
	}
	if err := binary.Read(r, binary.LittleEndian, &node.ModelID); err != nil {
		return err
	}
	if node.ModelID < 0 || node.ModelID > 65536 {
		return fmt.Errorf("shape node %d: implausible model id %d", id, node.ModelID)
	}
	modelAttrs, err := readDict(r)
	if err != nil {
		return err
	}
	node.ModelAttributes = modelAttrs
	d.SceneGraph[id] = node
	return nil
}

func (d *Data) readLayer(r io.Reader) error {
	var id int32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return err
	}
	for _, l := range d.Layers {
		if l.ID == id {
			return fmt.Errorf("layer with id %d already exists", id)
		}
	}
	attrs, err := readDict(r)
	if err != nil {
		return err
	}
	layer := Layer{ID: id, Attributes: attrs, Name: attrs["_name"], Hidden: attrs["_hidden"] == "1"}
	var reservedID int32
	if err := binary.Read(r, binary.LittleEndian, &reservedID); err != nil {
		return err
	}
	if reservedID != -1 {
		return fmt.Errorf("layer %d: reserved field must be -1, got %d", id, reservedID)
	}
	d.Layers = append(d.Layers, layer)
	return nil
}

func (d *Data) readMaterial(r io.Reader) error {
	var id int32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return err
	}
	if id < 0 || id > paletteSize {
		return fmt.Errorf("material id %d out of palette range", id)
	}
	if _, exists := d.Materials[id]; exists {
		return fmt.Errorf("material with id %d already exists", id)
	}
	attrs, err := readDict(r)
	if err != nil {
		return err
	}
	mat := Material{ID: id, Type: MaterialUnknown}
	switch attrs["_type"] {
	case "_diffuse":
		mat.Type = MaterialDiffuse
	case "_metal":
		mat.Type = MaterialMetal
	case "_glass":
		mat.Type = MaterialGlass
	case "_emit":
		mat.Type = MaterialEmit
	}
	mat.Weight = parseFloatAttr(attrs, "_weight")
	mat.Roughness = parseFloatAttr(attrs, "_rough")
	mat.Specular = parseFloatAttr(attrs, "_spec")
	mat.IOR = parseFloatAttr(attrs, "_ior")
	mat.Att = parseFloatAttr(attrs, "_att")
	mat.Flux = parseFloatAttr(attrs, "_flux")
	d.Materials[id] = mat
	return nil
}

func parseFloatAttr(attrs map[string]string, key string) float64 {
	v, ok := attrs[key]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// validateSceneGraph finds the unique unreferenced node (the root), and
// rejects files with zero scene-graph nodes but a missing root, multiple
// roots, or references to nodes that don't exist.
func (d *Data) validateSceneGraph() error {
	referenced := make(map[int32]bool)
	for id, node := range d.SceneGraph {
		switch node.Type {
		case NodeTransform:
			if _, ok := d.SceneGraph[node.ChildID]; !ok {
				return fmt.Errorf("voximport: transform node %d references missing child %d", id, node.ChildID)
			}
			referenced[node.ChildID] = true
			if node.LayerID != -1 {
				found := false
				for _, l := range d.Layers {
					if l.ID == node.LayerID {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("voximport: transform node %d references missing layer %d", id, node.LayerID)
				}
			}
		case NodeGroup:
			for _, childID := range node.ChildIDs {
				if _, ok := d.SceneGraph[childID]; !ok {
					return fmt.Errorf("voximport: group node %d references missing child %d", id, childID)
				}
				referenced[childID] = true
			}
		case NodeShape:
			if int(node.ModelID) < 0 || int(node.ModelID) >= len(d.Models) {
				return fmt.Errorf("voximport: shape node %d references missing model %d", id, node.ModelID)
			}
		}
	}

	for id := range d.SceneGraph {
		if referenced[id] {
			continue
		}
		if d.RootNodeID != -1 {
			return fmt.Errorf("voximport: more than one scene-graph root found (%d and %d)", d.RootNodeID, id)
		}
		d.RootNodeID = id
	}
	if len(d.SceneGraph) > 0 && d.RootNodeID == -1 {
		return fmt.Errorf("voximport: scene graph has no root (likely a reference cycle)")
	}
	return nil
}

// magicaToEngine maps a MagicaVoxel file-space coordinate (Z-up) to this
// engine's Y-up coordinate space: (x,y,z) -> (y,z,x).
func magicaToEngine(src voxel.IVec3) voxel.IVec3 {
	return voxel.IVec3{X: src.Y, Y: src.Z, Z: src.X}
}
