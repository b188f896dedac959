package watcher

import (
	"github.com/dropsync/dropsync/internal/models"
	"github.com/shopspring/decimal"
)

const defaultMarginFactor = 1.2

// CalculateMarketplacePrice — чистая функция (конфиг, цена поставщика) →
// цена маркетплейса, округлённая до двух знаков.
func CalculateMarketplacePrice(m *models.MonitoringConfig, supplierPrice float64) float64 {
	var price float64
	switch m.MarginType {
	case models.MarginTypeFixed:
		price = supplierPrice + m.MarginValue
	case models.MarginTypePercentage:
		price = supplierPrice * (1 + m.MarginValue/100)
	case models.MarginTypeFormula:
		v, err := evalFormula(m.PriceFormula, supplierPrice)
		if err != nil {
			// Кривая формула не должна ронять проверку.
			v = supplierPrice * defaultMarginFactor
		}
		price = v
	default:
		price = supplierPrice * defaultMarginFactor
	}
	return round2(price)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
