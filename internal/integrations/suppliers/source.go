package suppliers

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
)

// DataSource — источник каталога/остатков поставщика. Две реализации:
// живой API и детерминированные демо-данные для триала без креденшалов.
type DataSource interface {
	GetProducts(ctx context.Context, page, limit int) ([]models.SupplierProduct, error)
	GetInventory(ctx context.Context, skus []string) ([]models.InventoryUpdate, error)
}

// ---- live ----

type LiveSource struct {
	connector Connector
	creds     map[string]string
	httpc     *http.Client
}

func NewLiveSource(connector Connector, creds map[string]string, httpc *http.Client) *LiveSource {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &LiveSource{connector: connector, creds: creds, httpc: httpc}
}

func (s *LiveSource) GetProducts(ctx context.Context, page, limit int) ([]models.SupplierProduct, error) {
	u, err := url.Parse(s.connector.BaseURL + s.connector.ProductsEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse products url")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	s.connector.Auth.Apply(req, s.creds)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("supplier %s http %d", s.connector.ID, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	items, err := extractItems(raw)
	if err != nil {
		return nil, err
	}

	out := make([]models.SupplierProduct, 0, len(items))
	for _, it := range items {
		if s.connector.ID == "bigbuy" {
			out = append(out, mapBigBuyProduct(it))
		} else {
			out = append(out, mapGenericProduct(it))
		}
	}
	return out, nil
}

func (s *LiveSource) GetInventory(ctx context.Context, skus []string) ([]models.InventoryUpdate, error) {
	// Точка расширения: формат инкрементальных остатков у каждого API свой;
	// пока живой канал покрывает только полный каталог.
	return nil, errors.Errorf("live inventory feed is not implemented for %s", s.connector.ID)
}

// extractItems достаёт список товаров из типовых обёрток ответов.
func extractItems(raw json.RawMessage) ([]map[string]any, error) {
	var direct []map[string]any
	if json.Unmarshal(raw, &direct) == nil {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, "unexpected products payload")
	}
	for _, key := range []string{"products", "data", "list", "items", "result"} {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		if json.Unmarshal(inner, &direct) == nil {
			return direct, nil
		}
		// data может быть ещё раз обёрнута (data.list у CJ).
		var nested map[string]json.RawMessage
		if json.Unmarshal(inner, &nested) == nil {
			if list, ok := nested["list"]; ok && json.Unmarshal(list, &direct) == nil {
				return direct, nil
			}
		}
	}
	return nil, errors.New("no product list in supplier response")
}

// mapBigBuyProduct — именная ветка маппинга: поля каталога BigBuy.
func mapBigBuyProduct(it map[string]any) models.SupplierProduct {
	return models.SupplierProduct{
		ID:       asString(it["id"]),
		SKU:      asString(it["sku"]),
		Title:    firstString(it, "name"),
		Price:    asFloat(it["retailPrice"]),
		Cost:     asFloat(it["wholesalePrice"]),
		Stock:    int(asFloat(it["stock"])),
		Image:    firstString(it, "image"),
		Category: firstString(it, "category"),
	}
}

// mapGenericProduct — best-effort маппинг по распространённым алиасам полей.
func mapGenericProduct(it map[string]any) models.SupplierProduct {
	return models.SupplierProduct{
		ID:       firstStringOf(it, "id", "pid", "productId", "product_id"),
		SKU:      firstStringOf(it, "sku", "productSku", "reference", "model"),
		Title:    firstStringOf(it, "title", "name", "productName", "productNameEn"),
		Price:    firstFloatOf(it, "price", "sellPrice", "retailPrice", "salePrice"),
		Cost:     firstFloatOf(it, "cost", "costPrice", "wholesalePrice", "supplierPrice"),
		Stock:    int(firstFloatOf(it, "stock", "quantity", "inventory", "stock_total")),
		Image:    firstStringOf(it, "image", "imageUrl", "mainImage", "productImage"),
		Category: firstStringOf(it, "category", "categoryName"),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func firstString(it map[string]any, key string) string { return asString(it[key]) }

func firstStringOf(it map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(it[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstFloatOf(it map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := it[k]; ok {
			if f := asFloat(v); f != 0 {
				return f
			}
		}
	}
	return 0
}

// ---- demo ----

// DemoSource отдаёт синтетический каталог, детерминированный по
// (тип поставщика, индекс): одинаковый запрос — одинаковый ответ.
type DemoSource struct {
	supplierType string
}

func NewDemoSource(supplierType string) *DemoSource {
	return &DemoSource{supplierType: strings.ToLower(strings.TrimSpace(supplierType))}
}

func demoSeed(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{'|'})
	}
	return h.Sum32()
}

func (s *DemoSource) GetProducts(ctx context.Context, page, limit int) ([]models.SupplierProduct, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset := (page - 1) * limit
	prefix := strings.ToUpper(s.supplierType)
	if prefix == "" {
		prefix = "DEMO"
	}

	out := make([]models.SupplierProduct, 0, limit)
	for i := 0; i < limit; i++ {
		idx := offset + i
		seed := demoSeed(s.supplierType, strconv.Itoa(idx))

		cost := 4 + float64(seed%9000)/100 // 4.00 .. 93.99
		out = append(out, models.SupplierProduct{
			ID:       fmt.Sprintf("%s-%06d", strings.ToLower(prefix), idx+1),
			SKU:      fmt.Sprintf("%s-DEMO-%05d", prefix, idx+1),
			Title:    fmt.Sprintf("Produit démo %s #%d", s.supplierType, idx+1),
			Price:    round2(cost * 1.6),
			Cost:     round2(cost),
			Stock:    int(seed % 250),
			Image:    fmt.Sprintf("https://picsum.photos/seed/%s-%d/400", s.supplierType, idx+1),
			Category: demoCategories[int(seed)%len(demoCategories)],
		})
	}
	return out, nil
}

func (s *DemoSource) GetInventory(ctx context.Context, skus []string) ([]models.InventoryUpdate, error) {
	now := time.Now().UTC()
	out := make([]models.InventoryUpdate, 0, len(skus))
	for _, sku := range skus {
		seed := demoSeed(s.supplierType, sku)
		out = append(out, models.InventoryUpdate{
			SKU:     sku,
			Stock:   int(seed % 250),
			Updated: now,
		})
	}
	return out, nil
}

// LevelsFor возвращает детерминированную пару (stock, price) по SKU.
func (s *DemoSource) LevelsFor(sku string) (float64, float64) {
	seed := demoSeed(s.supplierType, sku)
	cost := 4 + float64(seed%9000)/100
	return float64(seed % 250), round2(cost * 1.6)
}

var demoCategories = []string{"Maison", "High-Tech", "Mode", "Sport", "Jardin", "Auto"}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
