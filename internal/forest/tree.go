package forest

import (
	"math/rand"
	"sort"
)

// Node is one node of a decision tree, stored in a flat slice so the
// tree serializes as a plain array. Interior nodes carry a split
// (feature index, threshold, child indices); leaves carry the class
// histogram of the training samples that reached them. Left and Right
// are -1 on leaves.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Counts    []int   `json:"c,omitempty"`
}

// Tree is a single CART-style classification tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict returns the class probability vector for one feature vector,
// read from the class histogram of the leaf the vector lands in.
func (t *Tree) Predict(x []float64) []float64 {
	i := 0
	for t.Nodes[i].Left >= 0 {
		if x[t.Nodes[i].Feature] <= t.Nodes[i].Threshold {
			i = t.Nodes[i].Left
		} else {
			i = t.Nodes[i].Right
		}
	}
	counts := t.Nodes[i].Counts
	total := 0
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total == 0 {
		return probs
	}
	for k, c := range counts {
		probs[k] = float64(c) / float64(total)
	}
	return probs
}

// treeBuilder grows one tree on a bootstrap sample. X is shared
// read-only across all builders; idx slices are owned per builder.
type treeBuilder struct {
	x        [][]float64
	y        []int
	nClasses int
	maxDepth int // 0 = unbounded
	mtry     int
	rng      *rand.Rand
	nodes    []Node
}

func (b *treeBuilder) grow(idx []int) *Tree {
	b.build(idx, 1)
	return &Tree{Nodes: b.nodes}
}

// build appends the subtree for idx and returns its root node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	counts := make([]int, b.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}

	if len(idx) < 2 || pure(counts) || (b.maxDepth > 0 && depth > b.maxDepth) {
		return b.leaf(counts)
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(counts)
	}

	// Partition idx in place around the threshold.
	lo := 0
	hi := len(idx)
	for lo < hi {
		if b.x[idx[lo]][feature] <= threshold {
			lo++
		} else {
			hi--
			idx[lo], idx[hi] = idx[hi], idx[lo]
		}
	}

	node := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: feature, Threshold: threshold, Left: -1, Right: -1})
	left := b.build(idx[:lo], depth+1)
	right := b.build(idx[lo:], depth+1)
	b.nodes[node].Left = left
	b.nodes[node].Right = right
	return node
}

func (b *treeBuilder) leaf(counts []int) int {
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1, Counts: counts})
	return len(b.nodes) - 1
}

// bestSplit searches mtry randomly chosen candidate features for the
// threshold minimising weighted Gini impurity. Returns ok=false when
// every candidate feature is constant over idx.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	nFeatures := len(b.x[idx[0]])
	candidates := b.rng.Perm(nFeatures)
	if b.mtry < nFeatures {
		candidates = candidates[:b.mtry]
	}

	bestImpurity := 0.0
	for _, f := range candidates {
		thr, impurity, valid := b.bestThreshold(idx, f)
		if valid && (!ok || impurity < bestImpurity) {
			feature, threshold, bestImpurity = f, thr, impurity
			ok = true
		}
	}
	return feature, threshold, ok
}

// splitSample pairs one feature value with its class for sorting.
type splitSample struct {
	value float64
	class int
}

func (b *treeBuilder) bestThreshold(idx []int, feature int) (threshold, impurity float64, ok bool) {
	samples := make([]splitSample, len(idx))
	for i, r := range idx {
		samples[i] = splitSample{value: b.x[r][feature], class: b.y[r]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].value < samples[j].value })

	total := len(samples)
	right := make([]int, b.nClasses)
	for _, s := range samples {
		right[s.class]++
	}
	left := make([]int, b.nClasses)

	for i := 0; i < total-1; i++ {
		left[samples[i].class]++
		right[samples[i].class]--
		if samples[i].value == samples[i+1].value {
			continue
		}
		nL := i + 1
		nR := total - nL
		w := (float64(nL)*gini(left, nL) + float64(nR)*gini(right, nR)) / float64(total)
		if !ok || w < impurity {
			threshold = samples[i].value + (samples[i+1].value-samples[i].value)/2
			impurity = w
			ok = true
		}
	}
	return threshold, impurity, ok
}

func gini(counts []int, n int) float64 {
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	seen := false
	for _, c := range counts {
		if c > 0 {
			if seen {
				return false
			}
			seen = true
		}
	}
	return true
}
