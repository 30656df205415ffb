package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/app"
	"github.com/brycewhit13/booksearch/internal/config"
	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/loader"
	logpkg "github.com/brycewhit13/booksearch/internal/logger"
	"github.com/brycewhit13/booksearch/internal/matcher"
	"github.com/brycewhit13/booksearch/internal/metrics"
	"github.com/brycewhit13/booksearch/internal/repository/embcache"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	queryuc "github.com/brycewhit13/booksearch/internal/usecase/query"
	"github.com/brycewhit13/booksearch/internal/version"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func corpusFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "corpus",
		Aliases: []string{"c"},
		Usage:   "Path to the catalog (.csv, .tsv or .parquet); overrides corpus.path from --config",
	}
}

func strategyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "strategy",
		Aliases: []string{"s"},
		Usage:   "Matching strategy (keyword_match, lexical_similarity, semantic_similarity)",
		Value:   string(request.DefaultStrategy),
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "bookquery",
		Usage:   "Match reading prompts against a book catalog",
		Version: version.String(),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a booksearch YAML config; built-in defaults when empty",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file with provider credentials",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "query",
				Usage:  "Rank catalog documents against one prompt",
				Action: queryCommand,
				Flags: []cli.Flag{
					corpusFlag(),
					strategyFlag(),
					&cli.StringFlag{
						Name:     "prompt",
						Aliases:  []string{"p"},
						Usage:    "Free-text reading request",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Corpus column to search",
						Value:   corpus.FieldSummary,
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to print",
						Value:   request.DefaultTopK,
					},
					&cli.StringFlag{
						Name:  "order",
						Usage: "Ranking direction (desc, asc)",
						Value: string(order.Descending),
					},
				},
			},
			{
				Name:   "evaluate",
				Usage:  "Compare summary variants over a file of validation prompts",
				Action: evaluateCommand,
				Flags: []cli.Flag{
					corpusFlag(),
					strategyFlag(),
					&cli.StringFlag{
						Name:     "prompts",
						Usage:    "CSV/TSV file with a prompt column",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "fields",
						Usage: "Corpus columns to compare",
						Value: cli.NewStringSlice(evaluationuc.DefaultFields()...),
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Prompts evaluated concurrently",
						Value: evaluationuc.DefaultWorkers,
					},
				},
			},
			{
				Name:   "merge",
				Usage:  "Join summary tables onto a catalog by title and write CSV",
				Action: mergeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "base",
						Usage:    "Catalog table",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "supplement",
						Usage:    "Summary table as PATH:COLUMN[,COLUMN...]; repeatable",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Join column",
						Value: corpus.FieldTitle,
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output CSV path; stdout when empty",
					},
				},
			},
		},
	}
}

// env holds what a command needs from the global flags.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func setup(c *cli.Context) (*env, error) {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg config.Config
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	} else {
		cfg.ApplyDefaults()
		cfg.Embedding.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.Embedding.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if path := c.String("corpus"); path != "" {
		cfg.Corpus.Path = path
	}

	logger, err := logpkg.NewLogger("cli", c.String("log-level"))
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// queryService loads the corpus and wires matchers. The embedder is only built for semantic
// runs so keyword and lexical queries work without provider credentials.
func (e *env) queryService(ctx context.Context, strat strategy.Strategy) (*queryuc.Service, func(), error) {
	c, err := app.LoadCorpus(e.cfg.Corpus)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var embedder domain.Embedder
	var memo *embcache.ColumnMemo
	if strat == strategy.Semantic {
		store, err := app.NewCache(ctx, e.cfg.Cache, e.logger)
		if err != nil {
			return nil, nil, err
		}
		emb, err := app.NewEmbedder(ctx, e.cfg.Embedding, store, e.logger)
		if err != nil {
			closeStore(store)
			return nil, nil, err
		}
		if memo, err = embcache.NewColumnMemo(e.cfg.Cache.ColumnMemoBytes, metrics.ColumnMemoTotal); err != nil {
			closeStore(store)
			return nil, nil, err
		}
		cleanup = func() {
			memo.Close()
			if emb != nil {
				emb.Close()
			}
			closeStore(store)
		}
		if emb != nil {
			embedder = emb.Embedder
		}
	}

	var columns matcher.ColumnCache
	if memo != nil {
		columns = memo
	}
	matchers, err := app.NewMatchers(e.cfg.Query, embedder, e.cfg.Embedding.Model, columns, e.logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc := queryuc.New(c, matchers, e.logger).
		WithTimeout(time.Duration(e.cfg.Query.TimeoutSec) * time.Second)
	return svc, cleanup, nil
}

func closeStore(store interface{ Close() }) {
	if store != nil {
		store.Close()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func queryCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	strat := strategy.Parse(c.String("strategy"))
	req, err := request.New(c.String("prompt"), strat, c.String("field"), c.Int("top-k"), order.Order(c.String("order")))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	svc, cleanup, err := e.queryService(ctx, req.Strategy())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, usage := domain.NewContextWithUsage(ctx)
	set, err := svc.Query(ctx, &req)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\tSCORE\tTITLE\tAUTHORS\n")
	for i, doc := range set.Documents() {
		d := doc.Document()
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, doc.Score(), d.Title(), d.Authors())
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%d of %d documents shown (%s, %s)\n",
		len(set.Documents()), set.TotalScored(), set.Strategy(), set.Field())
	if texts, tokens, used := usage.Snapshot(); used {
		fmt.Fprintf(c.App.Writer, "embedded %d texts, %d tokens\n", texts, tokens)
	}
	return nil
}

func evaluateCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	prompts, err := loader.LoadPrompts(c.String("prompts"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	strat := strategy.Parse(c.String("strategy"))
	svc, cleanup, err := e.queryService(ctx, strat)
	if err != nil {
		return err
	}
	defer cleanup()

	eval, err := evaluationuc.New(svc, c.Int("workers"), e.logger)
	if err != nil {
		return err
	}
	defer eval.Close()

	report, err := eval.Evaluate(ctx, prompts, c.StringSlice("fields"), strat)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FIELD\tMEAN\n")
	for _, field := range report.Fields {
		mean := report.Means[field]
		if math.IsNaN(mean) {
			fmt.Fprintf(w, "%s\t-\n", field)
			continue
		}
		fmt.Fprintf(w, "%s\t%.4f\n", field, mean)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%d prompts evaluated, %d rejected (%s)\n", report.Evaluated, report.Failed, report.Strategy)
	return nil
}

func mergeCommand(c *cli.Context) error {
	base, err := loader.ReadTable(c.String("base"))
	if err != nil {
		return err
	}

	var sups []loader.Supplement
	for _, spec := range c.StringSlice("supplement") {
		path, cols, ok := strings.Cut(spec, ":")
		if !ok || path == "" || cols == "" {
			return fmt.Errorf("supplement %q must be PATH:COLUMN[,COLUMN...]", spec)
		}
		t, err := loader.ReadTable(path)
		if err != nil {
			return err
		}
		sups = append(sups, loader.Supplement{Table: t, Columns: strings.Split(cols, ",")})
	}

	merged, err := loader.Merge(base, c.String("key"), sups...)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	return loader.WriteCSV(out, merged)
}
