package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrClassImbalance is returned when a requested class has no training
// rows at all. Training cannot proceed: a balanced bootstrap would be
// drawing from an empty class.
var ErrClassImbalance = errors.New("class has no training samples")

// Config holds the forest training parameters.
type Config struct {
	Trees            int   // number of trees; default 1000
	FeaturesPerSplit int   // candidate features per split; 0 = sqrt(nFeatures)
	MaxDepth         int   // maximum tree depth; 0 = unbounded
	Workers          int   // parallel tree fits; 0 = GOMAXPROCS
	Seed             int64 // base RNG seed; per-tree RNGs derive from it
}

// DefaultConfig returns the production-default training parameters.
func DefaultConfig() Config {
	return Config{Trees: 1000}
}

// Sampler draws one tree's bootstrap sample. byClass holds the training
// row indices grouped by class; the returned slice is the sample, with
// repeats allowed. Injecting the strategy here keeps the trainer free of
// hidden global state.
type Sampler func(rng *rand.Rand, byClass [][]int) []int

// BalancedBootstrap draws, with replacement, exactly minority-count rows
// from every class, where minority-count is the size of the rarest
// class. This is the correctness-defining resampling policy for
// imbalanced activity ground truth.
func BalancedBootstrap(rng *rand.Rand, byClass [][]int) []int {
	minCount := len(byClass[0])
	for _, c := range byClass[1:] {
		if len(c) < minCount {
			minCount = len(c)
		}
	}
	sample := make([]int, 0, minCount*len(byClass))
	for _, c := range byClass {
		for i := 0; i < minCount; i++ {
			sample = append(sample, c[rng.Intn(len(c))])
		}
	}
	return sample
}

// Forest is an ordered collection of independently trained trees plus
// the label set they classify into. Class probabilities are aggregated
// by averaging tree votes. Immutable once trained.
type Forest struct {
	Labels []string `json:"labels"`
	Trees  []*Tree  `json:"trees"`
}

// Train fits cfg.Trees trees on the feature matrix x and label vector y,
// each tree on its own sample drawn by the given Sampler. classes fixes
// the label set; pass nil to derive it from y. Returns the forest and
// the out-of-bag probability vector for every training row, computed
// only from trees whose bootstrap excluded that row.
func Train(x [][]float64, y []string, classes []string, cfg Config, sample Sampler) (*Forest, [][]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, nil, fmt.Errorf("training data: %d feature rows, %d labels", len(x), len(y))
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultConfig().Trees
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if sample == nil {
		sample = BalancedBootstrap
	}

	if classes == nil {
		classes = uniqueSorted(y)
	}
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	yIdx := make([]int, len(y))
	byClass := make([][]int, len(classes))
	for i, label := range y {
		k, ok := classIndex[label]
		if !ok {
			return nil, nil, fmt.Errorf("label %q at row %d is not in the class set", label, i)
		}
		yIdx[i] = k
		byClass[k] = append(byClass[k], i)
	}
	for k, rows := range byClass {
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("%w: %q", ErrClassImbalance, classes[k])
		}
	}

	mtry := cfg.FeaturesPerSplit
	if mtry <= 0 {
		mtry = int(math.Sqrt(float64(len(x[0]))))
		if mtry < 1 {
			mtry = 1
		}
	}

	trees := make([]*Tree, cfg.Trees)
	inBag := make([][]bool, cfg.Trees)

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				// Seed derives from the tree index alone so the forest is
				// reproducible regardless of worker scheduling.
				rng := rand.New(rand.NewSource(cfg.Seed + int64(t)*0x9e3779b9))
				idx := sample(rng, byClass)

				bag := make([]bool, len(x))
				for _, i := range idx {
					bag[i] = true
				}
				inBag[t] = bag

				b := &treeBuilder{
					x:        x,
					y:        yIdx,
					nClasses: len(classes),
					maxDepth: cfg.MaxDepth,
					mtry:     mtry,
					rng:      rng,
				}
				trees[t] = b.grow(idx)
			}
		}()
	}
	for t := 0; t < cfg.Trees; t++ {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	f := &Forest{Labels: classes, Trees: trees}
	return f, f.oobProbs(x, inBag), nil
}

// oobProbs averages, for each training row, the probability vectors of
// the trees whose bootstrap excluded that row. A row held out by no tree
// falls back to the full-forest prediction.
func (f *Forest) oobProbs(x [][]float64, inBag [][]bool) [][]float64 {
	oob := make([][]float64, len(x))
	for i := range x {
		acc := make([]float64, len(f.Labels))
		n := 0
		for t, tree := range f.Trees {
			if inBag[t][i] {
				continue
			}
			floats.Add(acc, tree.Predict(x[i]))
			n++
		}
		if n == 0 {
			oob[i] = f.Predict(x[i])
			continue
		}
		floats.Scale(1/float64(n), acc)
		oob[i] = acc
	}
	return oob
}

// Predict returns the forest's class probability vector for one feature
// vector, averaged over all trees.
func (f *Forest) Predict(x []float64) []float64 {
	acc := make([]float64, len(f.Labels))
	for _, tree := range f.Trees {
		floats.Add(acc, tree.Predict(x))
	}
	floats.Scale(1/float64(len(f.Trees)), acc)
	return acc
}

// PredictClass returns the index of the most probable class for one
// feature vector. Ties resolve to the first maximum, so prediction is
// deterministic for a fixed forest.
func (f *Forest) PredictClass(x []float64) int {
	return floats.MaxIdx(f.Predict(x))
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
