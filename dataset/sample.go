// Package dataset loads textured 3D objects and produces training batches of
// (texture, UV map, ground truth, target label) tuples.
//
// Dataset layout: one directory per object, holding exactly one .jpg or .png
// texture, a labels.txt whose first CSV line is either "dog" or a list of
// ints, and <name>.obj.
package dataset

import (
	"fmt"

	"github.com/YuminosukeSato/advnet/core/tensor"
)

// Sample3D is one textured object of the dataset. Immutable after load.
type Sample3D struct {
	// Index is the position in ascending directory-name order.
	Index int

	// Name is the directory name.
	Name string

	// Texture is a [T,T,3] tensor in [0,1].
	Texture *tensor.Tensor

	// ObjPath is the path of <name>.obj. Geometry is not read.
	ObjPath string

	Labels LabelSet
}

func (s *Sample3D) String() string {
	return fmt.Sprintf("%s: labels %s", s.Name, s.Labels)
}

// Batch is a fixed-size training batch. All sequences have the same length
// and Targets[i] is never contained in GroundTruth[i].
type Batch struct {
	// Textures is [B,T,T,3] in [0,1].
	Textures *tensor.Tensor

	// UVMaps is [B,H,W,2]; a negative u marks background.
	UVMaps *tensor.Tensor

	GroundTruth []LabelSet
	Targets     []int

	// Objects holds the Sample3D index of every entry.
	Objects []int
}

// Size returns the number of entries.
func (b *Batch) Size() int { return len(b.Targets) }
