package catalog

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

var skuCaser = cases.Upper(language.Und)

// NormalizeSKU trims and upper-cases a SKU.
func NormalizeSKU(sku string) string {
	return skuCaser.String(strings.TrimSpace(sku))
}

// normalize cleans d in place and reports invalid fields.
func (d *Details) normalize(fields map[string]string) units.Unit {
	d.SKU = NormalizeSKU(d.SKU)
	d.Name = strings.TrimSpace(d.Name)
	d.Nature = strings.TrimSpace(d.Nature)
	d.Supplier = strings.TrimSpace(d.Supplier)
	d.Location = strings.TrimSpace(d.Location)
	if d.SKU == "" {
		fields["sku"] = "required"
	}
	if d.Name == "" {
		fields["name"] = "required"
	}
	unit, err := units.Parse(d.Unit)
	if err != nil {
		fields["unit"] = "unknown unit"
	}
	checkNonNegative(fields, "min_stock", d.MinStock)
	checkNonNegative(fields, "production_price", d.ProductionPrice)
	checkNonNegative(fields, "client_price", d.ClientPrice)
	checkNonNegative(fields, "professional_price", d.ProfessionalPrice)
	return unit
}

func checkNonNegative(fields map[string]string, name string, v *float64) {
	if v == nil {
		return
	}
	if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		fields[name] = "must be >= 0"
	}
}
