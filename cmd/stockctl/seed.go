package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/catalog"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// seedFile is the YAML layout accepted by `stockctl seed`.
type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	SKU               string   `yaml:"sku"`
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	Nature            string   `yaml:"nature"`
	Supplier          string   `yaml:"supplier"`
	Location          string   `yaml:"location"`
	Unit              string   `yaml:"unit"`
	MinStock          *float64 `yaml:"min_stock"`
	InitialQuantity   float64  `yaml:"initial_quantity"`
	ProductionPrice   *float64 `yaml:"production_price"`
	ClientPrice       *float64 `yaml:"client_price"`
	ProfessionalPrice *float64 `yaml:"professional_price"`
}

func (p seedProduct) input(actor string) catalog.CreateInput {
	return catalog.CreateInput{
		Details: catalog.Details{
			SKU:               p.SKU,
			Name:              p.Name,
			Description:       p.Description,
			Nature:            p.Nature,
			Supplier:          p.Supplier,
			Location:          p.Location,
			Unit:              p.Unit,
			MinStock:          p.MinStock,
			ProductionPrice:   p.ProductionPrice,
			ClientPrice:       p.ClientPrice,
			ProfessionalPrice: p.ProfessionalPrice,
		},
		InitialQuantity: p.InitialQuantity,
		Actor:           actor,
	}
}

func parseSeed(r io.Reader) (seedFile, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return seedFile{}, errors.New("seed: file is empty")
		}
		return seedFile{}, fmt.Errorf("seed: decode: %w", err)
	}
	return file, nil
}

type productCreator interface {
	Create(ctx context.Context, input catalog.CreateInput) (catalog.Product, error)
}

type seedResult struct {
	Created int
	Skipped int
}

// applySeed creates every product in order. Existing SKUs are skipped so the
// command can be re-run; any other error stops the run.
func applySeed(ctx context.Context, creator productCreator, file seedFile, logger *slog.Logger) (seedResult, error) {
	var res seedResult
	for i, p := range file.Products {
		product, err := creator.Create(ctx, p.input("seed"))
		switch {
		case errors.Is(err, shared.ErrDuplicate):
			res.Skipped++
			logger.Info("seed product exists", slog.String("sku", p.SKU))
		case err != nil:
			return res, fmt.Errorf("seed: products[%d] (%s): %w", i, p.SKU, err)
		default:
			res.Created++
			logger.Info("seed product created", slog.String("sku", product.SKU), slog.Float64("stock", product.CurrentStock))
		}
	}
	return res, nil
}

func newSeedCmd(e *env) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog products from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			file, err := parseSeed(f)
			if err != nil {
				return err
			}

			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			logger := e.newLogger(cfg)
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			services := app.BuildServices(cfg, logger, pool, nil, observability.NewMetrics())
			res, err := applySeed(cmd.Context(), services.Catalog, file, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", res.Created, res.Skipped)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "seed.yaml", "path to the YAML catalog")
	return cmd
}
