package main

import (
	"context"
	"database/sql"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jask/dashlego/core/cache"
	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/internal/config"
	"github.com/jask/dashlego/internal/dashfile"
	"github.com/jask/dashlego/internal/database"
	"github.com/jask/dashlego/internal/sample"
)

// newSource builds the page's pipeline: generated sales rows, optionally
// read back through sqlite, filtered by transform params and cached per
// desc. The returned cleanup closes what the source opened.
func newSource(ctx context.Context, def dashfile.SourceDef, desc cache.Descriptor, cfg config.Config, log logr.Logger) (*pipeline.AsyncSource, func() error, error) {
	cleanup := func() error { return nil }
	var builder pipeline.Builder = sample.Builder{Rows: def.Rows, Seed: def.Seed}
	if def.Query != "" {
		db, err := seededDB(ctx, def)
		if err != nil {
			return nil, nil, err
		}
		cleanup = db.Close
		builder = pipeline.NewSQLBuilder(db, def.Query)
	}

	src, err := pipeline.NewAsync(cfg.Pipeline.Workers,
		pipeline.WithBuilder(builder),
		pipeline.WithTransformer(pipeline.ColumnFilter{Log: log}),
		pipeline.WithCache(desc),
		pipeline.WithTTL(cfg.Cache.TTL),
		pipeline.WithLogger(log),
	)
	if err != nil {
		return nil, nil, multierr.Append(err, cleanup())
	}
	if len(def.Prewarm) > 0 {
		sets := make([]pipeline.Params, len(def.Prewarm))
		for i, p := range def.Prewarm {
			sets[i] = pipeline.Params(p)
		}
		if err := src.PrewarmConcurrent(ctx, sets...); err != nil {
			log.Error(err, "prewarm incomplete")
		}
	}
	return src, cleanup, nil
}

func seededDB(ctx context.Context, def dashfile.SourceDef) (*sql.DB, error) {
	db, err := database.OpenMemory()
	if err != nil {
		return nil, err
	}
	if err := sample.Seed(ctx, db, sample.Orders(def.Rows, def.Seed)); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}
