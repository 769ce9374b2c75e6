package tree

// Node is a single node of a binary regression tree.
// Leaves have Left == Right == -1.
type Node struct {
	Feature   int     // feature index used for splitting
	Threshold float64 // samples with x[Feature] <= Threshold go left
	Left      int     // index of the left child, -1 for leaves
	Right     int     // index of the right child, -1 for leaves
	Value     float64 // leaf output
	Gain      float64 // split gain, 0 for leaves
	Samples   int     // number of training samples that reached the node
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a fitted regression tree stored as a flat node slice; node 0 is the root.
type Tree struct {
	Nodes []Node
	Depth int // depth of the deepest leaf, root only = 0
}

// PredictRow walks the tree for one sample.
func (t *Tree) PredictRow(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	id := 0
	for {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// AddImportances accumulates the split gain of every internal node into dst,
// indexed by feature.
func (t *Tree) AddImportances(dst []float64) {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !n.IsLeaf() && n.Feature < len(dst) {
			dst[n.Feature] += n.Gain
		}
	}
}
