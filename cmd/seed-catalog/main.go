package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/storage/postgres"
)

type coffeeJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	Tags        []string        `json:"tags"`
}

func main() {
	var (
		databaseURL string
		coffeesFile string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&coffeesFile, "coffees-file", "db/seed/coffees.json", "path to coffees JSON file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, coffeesFile); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, coffeesFile string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	f, err := os.Open(coffeesFile)
	if err != nil {
		return errors.Wrap(err, "open coffees file")
	}
	defer func() { _ = f.Close() }()

	inputs, err := parseCoffees(f)
	if err != nil {
		return errors.Wrap(err, "parse coffees")
	}

	// The running API owns the search cache, so no invalidator here.
	svc := catalog.NewService(postgres.NewCoffeeRepository(pool), nil)
	created, err := seed(ctx, lg, svc, inputs)
	if err != nil {
		return err
	}
	lg.Info("Coffees seeded", zap.Int("created", created), zap.Int("total", len(inputs)))
	return nil
}

func parseCoffees(r io.Reader) ([]catalog.CreateInput, error) {
	var raw []coffeeJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	inputs := make([]catalog.CreateInput, 0, len(raw))
	for _, c := range raw {
		inputs = append(inputs, catalog.CreateInput{
			Name:        c.Name,
			Description: c.Description,
			Price:       c.Price,
			ImageURL:    c.ImageURL,
			Tags:        c.Tags,
		})
	}
	return inputs, nil
}

type catalogWriter interface {
	List(ctx context.Context) ([]catalog.Coffee, error)
	Create(ctx context.Context, in catalog.CreateInput) (*catalog.Coffee, error)
}

// seed creates every coffee whose name is not in the catalog yet, so reruns
// are harmless.
func seed(ctx context.Context, lg *zap.Logger, svc catalogWriter, inputs []catalog.CreateInput) (int, error) {
	existing, err := svc.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list coffees")
	}
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[strings.ToLower(c.Name)] = struct{}{}
	}

	created := 0
	for _, in := range inputs {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if _, ok := seen[key]; ok {
			lg.Debug("Coffee exists, skipping", zap.String("name", in.Name))
			continue
		}
		c, err := svc.Create(ctx, in)
		if err != nil {
			return created, errors.Wrapf(err, "create %q", in.Name)
		}
		seen[key] = struct{}{}
		created++
		lg.Info("Coffee created", zap.String("id", c.ID), zap.String("name", c.Name))
	}
	return created, nil
}
