// Package sample generates the deterministic sales dataset the demo
// dashboard and the tests run on.
package sample

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/jask/dashlego/core/pipeline"
	"github.com/jask/dashlego/internal/database"
)

var (
	Regions    = []string{"north", "south", "east", "west"}
	Categories = []string{"electronics", "books", "toys", "garden", "grocery"}
	basePrice  = map[string]float64{"electronics": 240, "books": 18, "toys": 35, "garden": 60, "grocery": 9}
)

// Epoch is the last day of every generated dataset.
var Epoch = time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)

// Order is one generated sale.
type Order struct {
	ID       string
	Date     time.Time
	Region   string
	Category string
	Units    int
	Price    float64
}

func (o Order) Revenue() float64 { return math.Round(float64(o.Units)*o.Price*100) / 100 }

// Orders generates n orders spread over the 90 days up to Epoch. The same
// seed always yields the same orders.
func Orders(n int, seed int64) []Order {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Order, n)
	for i := range out {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprint(seed, i)))
		}
		cat := Categories[rng.Intn(len(Categories))]
		price := basePrice[cat] * (0.8 + 0.4*rng.Float64())
		out[i] = Order{
			ID:       id.String(),
			Date:     Epoch.AddDate(0, 0, -rng.Intn(90)),
			Region:   Regions[rng.Intn(len(Regions))],
			Category: cat,
			Units:    1 + rng.Intn(5),
			Price:    math.Round(price*100) / 100,
		}
	}
	return out
}

// Frame lays orders out as a frame with columns order_id, date, region,
// category, units, price and revenue.
func Frame(orders []Order) dataframe.DataFrame {
	ids := make([]string, len(orders))
	dates := make([]string, len(orders))
	regions := make([]string, len(orders))
	cats := make([]string, len(orders))
	units := make([]int, len(orders))
	prices := make([]float64, len(orders))
	revenue := make([]float64, len(orders))
	for i, o := range orders {
		ids[i], dates[i], regions[i], cats[i] = o.ID, o.Date.Format(time.DateOnly), o.Region, o.Category
		units[i], prices[i], revenue[i] = o.Units, o.Price, o.Revenue()
	}
	return dataframe.New(
		series.New(ids, series.String, "order_id"),
		series.New(dates, series.String, "date"),
		series.New(regions, series.String, "region"),
		series.New(cats, series.String, "category"),
		series.New(units, series.Int, "units"),
		series.New(prices, series.Float, "price"),
		series.New(revenue, series.Float, "revenue"),
	)
}

// Builder generates the dataset as a pipeline build stage. It understands
// a "days" param that keeps only the last n days before Epoch.
type Builder struct {
	Rows int
	Seed int64
}

func (b Builder) CacheIdentity() string { return fmt.Sprintf("sales:%d:%d", b.Rows, b.Seed) }

func (b Builder) Build(ctx context.Context, params pipeline.Params) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}
	orders := Orders(b.Rows, b.Seed)
	if v, ok := params["days"]; ok && v != nil {
		days, err := cast.ToIntE(v)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("days: %w", err)
		}
		if days > 0 {
			cutoff := Epoch.AddDate(0, 0, -days)
			kept := orders[:0]
			for _, o := range orders {
				if o.Date.After(cutoff) {
					kept = append(kept, o)
				}
			}
			orders = kept
		}
	}
	return Frame(orders), nil
}

const schema = `CREATE TABLE IF NOT EXISTS sales (
	order_id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	region TEXT NOT NULL,
	category TEXT NOT NULL,
	units INTEGER NOT NULL,
	price REAL NOT NULL,
	revenue REAL NOT NULL
)`

// Seed writes orders into a sales table, creating it when missing.
func Seed(ctx context.Context, db *sql.DB, orders []Order) error {
	return database.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO sales(order_id, date, region, category, units, price, revenue) VALUES(?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range orders {
			if _, err := stmt.ExecContext(ctx, o.ID, o.Date.Format(time.DateOnly), o.Region, o.Category, o.Units, o.Price, o.Revenue()); err != nil {
				return err
			}
		}
		return nil
	})
}
