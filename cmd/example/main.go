package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"multiview/pkg/common"
	"multiview/pkg/config"
	"multiview/pkg/core"
	"multiview/pkg/logging"
	"multiview/pkg/monitor"
	"multiview/pkg/query"
)

type person struct {
	id       uint16
	name     string
	age      uint16
	nickname string
	language string
}

var persons = []person{
	{1, "Alice", 20, "Ali", "English"},
	{2, "Bob", 30, "Bobby", "French"},
	{3, "Cathy", 40, "Cat", "Spanish"},
	{4, "David", 50, "Dave", "German"},
	{5, "Eva", 60, "Eve", "Italian"},
	{6, "Frank", 70, "Frankie", "Chinese"},
	{7, "Grace", 80, "Gracie", "Japanese"},
	{8, "Hank", 90, "Hankie", "Korean"},
	{9, "Ivy", 100, "Ive", "Russian"},
	{10, "YTS2", 110, "Jackie", "Arabic"},
}

var queries = []string{
	"SELECT * FROM persons WHERE name = 'Bob'",
	"SELECT * FROM persons WHERE id = 3",
	"SELECT * FROM persons WHERE name = 'Bob' AND nickname = 'Bobby'",
	"SELECT * FROM persons WHERE age = 30 AND nickname = 'Bobby'",
	"SELECT * FROM persons WHERE id = 99",
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(os.Stdout, cfg, logger); err != nil {
		logger.Fatalw("example failed", "error", err)
	}
}

// run loads the sample persons, looks every one of them up through each view,
// then runs the scenario queries. Each lookup prints one Found/Not found line.
func run(w io.Writer, cfg *config.Config, logger *zap.SugaredLogger) error {
	stats := monitor.NewWorkloadStats(prometheus.NewRegistry())
	idx, err := core.FromConfig(cfg.Index, stats, logger)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	records := make([]common.Record, len(persons))
	for i, p := range persons {
		records[i] = idx.NewRecord(p.id, p.name, p.age, p.nickname, p.language)
	}
	if _, err := idx.InsertAll(records); err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	// One pass per view: look every sample person up by that view's key.
	for _, view := range idx.Views() {
		for _, rec := range records {
			key, err := idx.KeyOf(view, rec)
			if err != nil {
				return fmt.Errorf("view %q: %w", view, err)
			}
			args := make([]any, len(key))
			for i, v := range key {
				args[i] = v
			}
			e, err := idx.Lookup(view, args...)
			report(w, e, err)
		}
		fmt.Fprintf(w, "Count: %d\n\n", stats.Hits())
	}

	for _, q := range queries {
		stmt, err := query.Parse(q)
		if err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
		e, err := idx.Query(stmt)
		report(w, e, err)
	}
	fmt.Fprintf(w, "Count: %d\n", stats.Hits())

	logger.Infow("done", "records", idx.Len(), "rw_ratio", stats.GetReadWriteRatio())
	return nil
}

func report(w io.Writer, e core.Entry, err error) {
	switch {
	case err == nil:
		fmt.Fprintf(w, "Found: %s\n", e.Record.Name)
	case errors.Is(err, core.ErrNotFound):
		fmt.Fprintln(w, "Not found")
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
