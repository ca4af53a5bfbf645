// Package forest implements a self-contained random forest classifier
// with class-balanced bootstrap sampling.
//
// Every tree is trained on a bootstrap sample drawn independently per
// class, each class contributing exactly the rarest class's count. A
// naive global bootstrap would bias the forest toward over-represented
// activities (sedentary time dominates free-living data); balancing per
// tree corrects for that skew without discarding majority-class data.
//
// The sampling strategy is an injectable collaborator (see Sampler), so
// the trainer holds no hidden global state. Tree fitting is parallel
// across trees; each worker owns its tree's RNG, seeded from the config
// seed and the tree index, so results are reproducible regardless of
// scheduling.
package forest
