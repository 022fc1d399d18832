package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/stemsi/exstem-papers/internal/logger"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/questionbank"
)

func main() {
	dir := flag.String("dir", "library", "question library directory")
	verbose := flag.Bool("v", false, "log every loaded bank")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "pretty")

	ctx := context.Background()
	lib, err := questionbank.Load(ctx, *dir, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Library %s is invalid: %v\n", *dir, err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQUESTIONS\tDEFAULT\tTYPES\tSOURCE")
	for _, item := range lib.Difficulties() {
		types, err := typeCounts(ctx, lib, item.ID)
		if err != nil {
			log.Error().Err(err).Str("difficulty", item.ID).Msg("Reading pool failed")
			os.Exit(1)
		}
		source := "bank"
		if item.IsHybrid() {
			source = fmt.Sprintf("hybrid of %s + %s", item.HybridOf[0], item.HybridOf[1])
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			item.ID, item.Name, item.TotalQuestions, item.DefaultQuestions, types, source)
	}
	if err := w.Flush(); err != nil {
		log.Fatal().Err(err).Msg("Write summary failed")
	}
	log.Debug().Int("difficulties", len(lib.Difficulties())).Msg("Library checked")
}

func typeCounts(ctx context.Context, lib *questionbank.Library, id string) (string, error) {
	pool, err := lib.Pool(ctx, id)
	if err != nil {
		return "", err
	}
	counts := make(map[model.QuestionType]int)
	for _, q := range pool {
		counts[q.QuestionType]++
	}
	out := ""
	for _, t := range []model.QuestionType{
		model.QuestionTypeSingleChoice,
		model.QuestionTypeMultipleChoice,
		model.QuestionTypeFillInBlank,
		model.QuestionTypeEssay,
	} {
		if counts[t] == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", t, counts[t])
	}
	return out, nil
}
