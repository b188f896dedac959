package suppliers

import (
	"context"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
)

// Feed адаптирует шлюз под опрос вотчера: текущие (stock, price) по
// одному мониторингу. Любое из полей может отсутствовать.
type Feed struct {
	gw    *Gateway
	store CredentialStore
}

func NewFeed(gw *Gateway, store CredentialStore) *Feed {
	return &Feed{gw: gw, store: store}
}

func (f *Feed) CurrentLevels(ctx context.Context, m *models.MonitoringConfig) (*float64, *float64, error) {
	if m.SupplierSKU == "" {
		return nil, nil, errors.New("monitoring has no supplier sku")
	}

	supplierType := ""
	if cred, err := f.store.GetCredential(ctx, m.UserID, m.SupplierID); err == nil {
		supplierType = cred.SupplierType
	}

	updates, err := f.gw.GetInventory(ctx, m.UserID, m.SupplierID, supplierType, []string{m.SupplierSKU})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch inventory")
	}

	var stock *float64
	if len(updates) > 0 {
		v := float64(updates[0].Stock)
		stock = &v
	}

	// Живого пер-SKU прайс-фида у коннекторов нет; отдаём детерминированную
	// демо-цену, полный живой прайс приходит страницами каталога.
	_, price := NewDemoSource(supplierType).LevelsFor(m.SupplierSKU)
	return stock, &price, nil
}
