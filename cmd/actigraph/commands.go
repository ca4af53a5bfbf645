package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fieldkinetics/actigraph/internal/bundle"
	"github.com/fieldkinetics/actigraph/internal/classify"
	"github.com/fieldkinetics/actigraph/internal/config"
	"github.com/fieldkinetics/actigraph/internal/epoch"
	"github.com/fieldkinetics/actigraph/internal/evaluate"
	"github.com/fieldkinetics/actigraph/internal/forest"
	"github.com/fieldkinetics/actigraph/internal/storage/sqlite"
	"github.com/fieldkinetics/actigraph/internal/train"
)

// defaultMigrationsDir is where a deployed binary finds its schema
// migrations relative to the working directory.
const defaultMigrationsDir = "db/migrations"

func openStore(path, migrations string) (*sqlite.Store, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.MigrateUp(migrations); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	input := fs.String("input", "", "labelled epoch feature CSV (required)")
	output := fs.String("output", "model.bundle", "path for the trained model bundle")
	cfgPath := fs.String("config", "", "optional JSON training config")
	trees := fs.Int("trees", 0, "override tree count")
	seed := fs.Int64("seed", 0, "override RNG seed")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("train: -input is required")
	}

	var cfg forest.Config
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded.Apply()
	} else {
		cfg = forest.DefaultConfig()
	}
	if *trees > 0 {
		cfg.Trees = *trees
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	table, err := readFeatureCSV(*input, true)
	if err != nil {
		return err
	}

	b, err := train.Train(table, cfg, nil)
	if err != nil {
		return err
	}
	if err := b.Save(*output); err != nil {
		return err
	}
	log.Printf("saved model bundle to %s (%d labels, %d features)",
		*output, len(b.Forest.Labels), len(b.Features))
	return nil
}

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	input := fs.String("input", "", "epoch feature CSV (required)")
	model := fs.String("model", "walmsley", "model bundle path or registered model name")
	output := fs.String("output", "", "output CSV path (default stdout)")
	probabilistic := fs.Bool("probabilistic", false, "emit per-label posterior columns")
	dbPath := fs.String("db", "", "optional sqlite database recording the run")
	migrations := fs.String("migrations", defaultMigrationsDir, "schema migrations directory")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("classify: -input is required")
	}

	registry, err := bundle.DefaultRegistry()
	if err != nil {
		return err
	}
	path, err := registry.Resolve(*model)
	if err != nil {
		return err
	}
	b, err := bundle.Load(path)
	if err != nil {
		return err
	}

	table, err := readFeatureCSV(*input, false)
	if err != nil {
		return err
	}

	res, err := classify.Apply(b, table, classify.Options{Probabilistic: *probabilistic})
	if err != nil {
		return err
	}

	if *dbPath != "" {
		store, err := openStore(*dbPath, *migrations)
		if err != nil {
			return err
		}
		defer store.Close()

		participants := make(map[string]bool)
		invalid := 0
		for i := range table.Rows {
			participants[table.Rows[i].Participant] = true
			if !res.Outcomes[i].Valid {
				invalid++
			}
		}
		run := &sqlite.Run{
			Model:        *model,
			Participants: len(participants),
			EpochCount:   len(table.Rows),
			InvalidCount: invalid,
		}
		if err := store.InsertRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		log.Printf("recorded run %s", run.RunID)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeResultCSV(out, table, res, *probabilistic)
}

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	input := fs.String("input", "", "CSV with participant, label, predicted columns (required)")
	htmlOut := fs.String("html", "", "optional path for an HTML report")
	dbPath := fs.String("db", "", "optional sqlite database recording the summary")
	runID := fs.String("run", "", "run id to attach the summary to (with -db)")
	migrations := fs.String("migrations", defaultMigrationsDir, "schema migrations directory")
	fs.Parse(args)

	if *input == "" {
		return fmt.Errorf("evaluate: -input is required")
	}

	participants, truth, predicted, err := readEvaluationCSV(*input)
	if err != nil {
		return err
	}

	// Sentinel-labelled rows never entered classification; scoring them
	// would punish the model for rows it refused to guess on.
	participants, truth, predicted = dropSentinel(participants, truth, predicted)

	summary, err := evaluate.Evaluate(participants, truth, predicted)
	if err != nil {
		return err
	}
	fmt.Print(summary.String())

	if *dbPath != "" {
		store, err := openStore(*dbPath, *migrations)
		if err != nil {
			return err
		}
		defer store.Close()

		confusion, err := json.Marshal(summary.Confusion)
		if err != nil {
			return fmt.Errorf("encode confusion matrix: %w", err)
		}
		eval := &sqlite.Evaluation{
			RunID:         *runID,
			KappaMean:     summary.KappaMean,
			KappaSD:       summary.KappaSD,
			KappaCILow:    summary.KappaCI[0],
			KappaCIHigh:   summary.KappaCI[1],
			AccuracyMean:  summary.AccuracyMean,
			AccuracySD:    summary.AccuracySD,
			Participants:  len(summary.Scores),
			ConfusionJSON: confusion,
		}
		if err := store.InsertEvaluation(eval); err != nil {
			return fmt.Errorf("record evaluation: %w", err)
		}
		log.Printf("recorded evaluation %s", eval.EvalID)
	}

	if *htmlOut != "" {
		f, err := os.Create(*htmlOut)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := summary.RenderHTML(f); err != nil {
			return err
		}
		log.Printf("wrote HTML report to %s", *htmlOut)
	}
	return nil
}

func dropSentinel(participants, truth, predicted []string) (p, t, pr []string) {
	for i := range predicted {
		if predicted[i] == epoch.SentinelLabel {
			continue
		}
		p = append(p, participants[i])
		t = append(t, truth[i])
		pr = append(pr, predicted[i])
	}
	return p, t, pr
}
