package shipments

import (
	"fmt"
	"strings"
)

const (
	lbToKg = 0.45359237
	inToCm = 2.54
)

func (a ShippingAddress) Validate(field string) error {
	if strings.TrimSpace(a.Name) == "" {
		return Invalid(field+".name", "required")
	}
	if len(a.StreetLines) == 0 || strings.TrimSpace(a.StreetLines[0]) == "" {
		return Invalid(field+".streetLines", "at least one street line required")
	}
	if strings.TrimSpace(a.City) == "" {
		return Invalid(field+".city", "required")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return Invalid(field+".postalCode", "required")
	}
	if len(a.CountryCode) != 2 {
		return Invalid(field+".countryCode", "must be ISO 3166-1 alpha-2")
	}
	return nil
}

func (p PackageDetails) Validate(field string) error {
	if p.Weight <= 0 {
		return Invalid(field+".weight", "must be positive")
	}
	switch strings.ToUpper(p.WeightUnit) {
	case "KG", "LB", "":
	default:
		return Invalid(field+".weightUnit", "must be KG or LB")
	}
	if p.Count < 0 {
		return Invalid(field+".count", "must not be negative")
	}
	if d := p.Dimensions; d != nil {
		if d.Length <= 0 || d.Width <= 0 || d.Height <= 0 {
			return Invalid(field+".dimensions", "must be positive")
		}
		switch strings.ToUpper(d.Unit) {
		case "CM", "IN", "":
		default:
			return Invalid(field+".dimensions.unit", "must be CM or IN")
		}
	}
	return nil
}

func (r ShipmentRequest) Validate() error {
	if err := r.Shipper.Validate("shipper"); err != nil {
		return err
	}
	if err := r.Recipient.Validate("recipient"); err != nil {
		return err
	}
	if len(r.Packages) == 0 {
		return Invalid("packages", "at least one package required")
	}
	for i, p := range r.Packages {
		if err := p.Validate(fmt.Sprintf("packages[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// WeightKg per satu package (belum dikali Count).
func (p PackageDetails) WeightKg() float64 {
	if strings.EqualFold(p.WeightUnit, "LB") {
		return p.Weight * lbToKg
	}
	return p.Weight
}

// DimensionsCm returns L, W, H in centimetres, or zeros when absent.
func (p PackageDetails) DimensionsCm() (float64, float64, float64) {
	d := p.Dimensions
	if d == nil {
		return 0, 0, 0
	}
	f := 1.0
	if strings.EqualFold(d.Unit, "IN") {
		f = inToCm
	}
	return d.Length * f, d.Width * f, d.Height * f
}

func (p PackageDetails) Pieces() int {
	if p.Count <= 0 {
		return 1
	}
	return p.Count
}

// TotalWeightKg sums actual weight across every piece of every package.
func TotalWeightKg(pkgs []PackageDetails) float64 {
	var total float64
	for _, p := range pkgs {
		total += p.WeightKg() * float64(p.Pieces())
	}
	return total
}
