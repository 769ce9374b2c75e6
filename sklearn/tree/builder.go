package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// BuildConfig controls tree growth.
type BuildConfig struct {
	MaxDepth        int     // <= 0 means unlimited
	MinSamplesSplit int     // minimum samples required to split a node
	MinSamplesLeaf  int     // minimum samples required in each child
	MaxFeatures     int     // features considered per split, <= 0 means all
	Lambda          float64 // L2 regularisation on leaf values
	MinGain         float64 // minimum gain required to split
}

// Dataset is a row-major feature matrix shared read-only between builders.
type Dataset struct {
	Data []float64
	Rows int
	Cols int
}

// NewDataset copies X into row-major storage.
func NewDataset(X mat.Matrix) *Dataset {
	r, c := X.Dims()
	d := &Dataset{Data: make([]float64, r*c), Rows: r, Cols: c}
	if dense, ok := X.(*mat.Dense); ok {
		raw := dense.RawMatrix()
		for i := 0; i < r; i++ {
			copy(d.Data[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
		}
		return d
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Data[i*c+j] = X.At(i, j)
		}
	}
	return d
}

// At returns the value of feature j for sample i.
func (d *Dataset) At(i, j int) float64 {
	return d.Data[i*d.Cols+j]
}

// Row returns sample i without copying.
func (d *Dataset) Row(i int) []float64 {
	return d.Data[i*d.Cols : (i+1)*d.Cols]
}

// Build grows a tree on the given samples using first and second order
// statistics. Split gain and leaf values follow the second-order boosting
// formulas:
//
//	gain = ½ (G_L²/(H_L+λ) + G_R²/(H_R+λ) − G²/(H+λ))
//	leaf = −G/(H+λ)
//
// With grad = −y, hess = 1 and λ = 0 this is CART variance reduction with
// leaf means. indices may contain duplicates (bootstrap samples).
// rng is only used when cfg.MaxFeatures restricts the candidate features.
func Build(d *Dataset, grad, hess []float64, indices []int, cfg BuildConfig, rng *rand.Rand) Tree {
	b := &builder{d: d, grad: grad, hess: hess, cfg: cfg, rng: rng}
	if b.cfg.MinSamplesLeaf < 1 {
		b.cfg.MinSamplesLeaf = 1
	}
	if b.cfg.MinSamplesSplit < 2 {
		b.cfg.MinSamplesSplit = 2
	}
	b.features = make([]int, d.Cols)
	for j := range b.features {
		b.features[j] = j
	}

	root := make([]int, len(indices))
	copy(root, indices)
	b.buildNode(root, 0)
	return b.tree
}

type builder struct {
	d        *Dataset
	grad     []float64
	hess     []float64
	cfg      BuildConfig
	rng      *rand.Rand
	features []int
	tree     Tree
}

type splitInfo struct {
	feature   int
	threshold float64
	gain      float64
	found     bool
}

func (b *builder) sums(indices []int) (g, h float64) {
	for _, idx := range indices {
		g += b.grad[idx]
		h += b.hess[idx]
	}
	return g, h
}

func (b *builder) leafValue(g, h float64) float64 {
	denom := h + b.cfg.Lambda
	if denom <= 0 {
		return 0
	}
	return -g / denom
}

// buildNode recursively builds tree nodes and returns the index of the new node.
func (b *builder) buildNode(indices []int, depth int) int {
	nodeIdx := len(b.tree.Nodes)
	g, h := b.sums(indices)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Left:    -1,
		Right:   -1,
		Value:   b.leafValue(g, h),
		Samples: len(indices),
	})
	if depth > b.tree.Depth {
		b.tree.Depth = depth
	}

	if (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) ||
		len(indices) < b.cfg.MinSamplesSplit ||
		len(indices) < 2*b.cfg.MinSamplesLeaf {
		return nodeIdx
	}

	split := b.findBestSplit(indices, g, h)
	if !split.found {
		return nodeIdx
	}

	left, right := b.splitData(indices, split)
	n := &b.tree.Nodes[nodeIdx]
	n.Feature = split.feature
	n.Threshold = split.threshold
	n.Gain = split.gain

	leftChild := b.buildNode(left, depth+1)
	rightChild := b.buildNode(right, depth+1)
	b.tree.Nodes[nodeIdx].Left = leftChild
	b.tree.Nodes[nodeIdx].Right = rightChild
	return nodeIdx
}

// candidateFeatures returns the features to evaluate at one node.
func (b *builder) candidateFeatures() []int {
	k := b.cfg.MaxFeatures
	if k <= 0 || k >= len(b.features) || b.rng == nil {
		return b.features
	}
	perm := b.rng.Perm(len(b.features))[:k]
	sort.Ints(perm)
	return perm
}

func (b *builder) findBestSplit(indices []int, g, h float64) splitInfo {
	parentScore := g * g / (h + b.cfg.Lambda)
	// Rounding noise scales with the parent score; a pure node must not split.
	minGain := math.Max(b.cfg.MinGain, 1e-12*math.Abs(parentScore))

	best := splitInfo{gain: minGain}
	sorted := make([]int, len(indices))
	for _, j := range b.candidateFeatures() {
		copy(sorted, indices)
		s := b.findBestSplitForFeature(sorted, j, g, h, parentScore)
		if s.found && s.gain > best.gain {
			best = s
		}
	}
	return best
}

// findBestSplitForFeature sorts indices in place by feature j and scans every
// boundary between distinct values.
func (b *builder) findBestSplitForFeature(indices []int, j int, g, h, parentScore float64) splitInfo {
	d := b.d
	sort.SliceStable(indices, func(a, c int) bool {
		return d.At(indices[a], j) < d.At(indices[c], j)
	})

	best := splitInfo{feature: j, gain: math.Inf(-1)}
	lambda := b.cfg.Lambda
	minLeaf := b.cfg.MinSamplesLeaf
	var leftG, leftH float64
	n := len(indices)
	for i := 0; i < n-1; i++ {
		idx := indices[i]
		leftG += b.grad[idx]
		leftH += b.hess[idx]

		v, next := d.At(idx, j), d.At(indices[i+1], j)
		if v == next {
			continue
		}
		leftCount := i + 1
		if leftCount < minLeaf || n-leftCount < minLeaf {
			continue
		}

		rightG, rightH := g-leftG, h-leftH
		gain := 0.5 * (leftG*leftG/(leftH+lambda) + rightG*rightG/(rightH+lambda) - parentScore)
		if gain > best.gain {
			best.gain = gain
			threshold := v + (next-v)/2
			// adjacent floats: the midpoint can round up to next
			if threshold >= next {
				threshold = v
			}
			best.threshold = threshold
			best.found = true
		}
	}
	return best
}

func (b *builder) splitData(indices []int, split splitInfo) ([]int, []int) {
	left := make([]int, 0, len(indices)/2)
	right := make([]int, 0, len(indices)/2)
	for _, idx := range indices {
		if b.d.At(idx, split.feature) <= split.threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}
