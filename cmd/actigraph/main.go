// Package main provides the actigraph command line front end: train a
// model from a labelled epoch feature CSV, classify new feature data
// with a trained or published model, and evaluate predictions against
// ground truth. All engine logic lives in internal/; this binary only
// parses flags and moves tables in and out of CSV files.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fieldkinetics/actigraph/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: actigraph <command> [flags]

commands:
  train      fit a model from a labelled feature CSV and save a bundle
  classify   apply a model bundle to a feature CSV
  evaluate   score predictions against ground truth labels
  version    print build information

run "actigraph <command> -h" for command flags
`)
	os.Exit(2)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("actigraph: ")

	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "classify":
		err = runClassify(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "version":
		fmt.Printf("actigraph %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}
