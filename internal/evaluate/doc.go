// Package evaluate computes classifier-quality statistics: Cohen's
// kappa and accuracy per participant, their mean, standard deviation and
// 95% confidence interval across participants, and a confusion matrix
// over the union of observed labels.
//
// Pure reporting; nothing here feeds back into the model.
package evaluate
