package bom

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

const belowPrecision = "below storage precision"

// validateInput checks the request shape before any product is loaded.
func validateInput(finishedID uuid.UUID, qty float64, lines []Line) error {
	fields := map[string]string{}
	if finishedID == uuid.Nil {
		fields["finished_product_id"] = "required"
	}
	switch {
	case !(qty > 0) || math.IsInf(qty, 0):
		fields["quantity_to_produce"] = "must be greater than 0"
	case qty < inventory.Epsilon:
		fields["quantity_to_produce"] = belowPrecision
	}
	if len(lines) == 0 {
		fields["lines"] = "at least one material required"
	}
	for i, line := range lines {
		key := fmt.Sprintf("lines[%d]", i)
		if line.MaterialID == uuid.Nil {
			fields[key+".material_id"] = "required"
		} else if line.MaterialID == finishedID {
			fields[key+".material_id"] = "cannot be the finished product"
		}
		if !(line.Quantity > 0) || math.IsInf(line.Quantity, 0) {
			fields[key+".quantity"] = "must be greater than 0"
		}
		if _, err := units.Parse(line.Unit); err != nil {
			fields[key+".unit"] = "unknown unit"
		}
	}
	return shared.NewValidationError(fields)
}

func productIDs(finishedID uuid.UUID, lines []Line) []uuid.UUID {
	seen := map[uuid.UUID]bool{finishedID: true}
	ids := []uuid.UUID{finishedID}
	for _, line := range lines {
		if !seen[line.MaterialID] {
			seen[line.MaterialID] = true
			ids = append(ids, line.MaterialID)
		}
	}
	return ids
}

// computeRequirements converts and aggregates lines against loaded products.
// Requirements keep the order in which materials first appear. A material
// whose total requirement rounds below the ledger precision is rejected on the
// line that introduced it, so a dry run never passes what assembly refuses.
func computeRequirements(finishedID uuid.UUID, qty float64, lines []Line, items map[uuid.UUID]inventory.StockItem) (inventory.StockItem, []Requirement, error) {
	fields := map[string]string{}
	finished, ok := items[finishedID]
	switch {
	case !ok:
		fields["finished_product_id"] = "unknown product"
	case !finished.Active:
		fields["finished_product_id"] = "product is inactive"
	}

	index := map[uuid.UUID]int{}
	reqs := []Requirement{}
	firstLine := []int{}
	for i, line := range lines {
		key := fmt.Sprintf("lines[%d]", i)
		material, ok := items[line.MaterialID]
		if !ok {
			fields[key+".material_id"] = "unknown product"
			continue
		}
		if !material.Active {
			fields[key+".material_id"] = "product is inactive"
			continue
		}
		lineUnit, _ := units.Parse(line.Unit)
		storage := material.Unit
		if storage == "" {
			storage = units.Default
		}
		perUnit, err := units.Convert(line.Quantity, lineUnit, storage)
		if err != nil {
			if errors.Is(err, units.ErrIncompatibleUnits) {
				fields[key+".unit"] = fmt.Sprintf("%s is not convertible to %s", lineUnit, storage)
			} else {
				fields[key+".unit"] = err.Error()
			}
			continue
		}
		pos, seen := index[material.ID]
		if !seen {
			pos = len(reqs)
			index[material.ID] = pos
			firstLine = append(firstLine, i)
			reqs = append(reqs, Requirement{
				MaterialID: material.ID,
				SKU:        material.SKU,
				Name:       material.Name,
				Unit:       storage,
				Available:  material.CurrentStock,
			})
		}
		reqs[pos].PerUnit += perUnit
	}
	if err := shared.NewValidationError(fields); err != nil {
		return inventory.StockItem{}, nil, err
	}
	for i := range reqs {
		reqs[i].Required = reqs[i].PerUnit * qty
		if reqs[i].Required < inventory.Epsilon {
			fields[fmt.Sprintf("lines[%d].quantity", firstLine[i])] = belowPrecision
		}
	}
	if err := shared.NewValidationError(fields); err != nil {
		return inventory.StockItem{}, nil, err
	}
	return finished, reqs, nil
}

func shortagesOf(reqs []Requirement) []Shortage {
	out := []Shortage{}
	for _, r := range reqs {
		if !r.Short() {
			continue
		}
		out = append(out, Shortage{
			MaterialID: r.MaterialID,
			SKU:        r.SKU,
			Name:       r.Name,
			Unit:       r.Unit,
			Required:   r.Required,
			Available:  r.Available,
			Missing:    r.Required - r.Available,
		})
	}
	return out
}
