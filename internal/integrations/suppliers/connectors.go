package suppliers

import (
	"net/http"
	"strings"
)

// AuthScheme — способ передачи ключа в заголовках конкретного поставщика.
type AuthScheme struct {
	Header string
	Prefix string
	// Поле креденшалов, из которого берётся значение (по умолчанию apiKey).
	CredentialKey string
}

func (a AuthScheme) Apply(req *http.Request, creds map[string]string) {
	key := a.CredentialKey
	if key == "" {
		key = "apiKey"
	}
	v := creds[key]
	if v == "" {
		// Частый случай: токен лежит под другим именем.
		if v = creds["accessToken"]; v == "" {
			v = creds["apiKey"]
		}
	}
	req.Header.Set(a.Header, a.Prefix+v)
}

// Connector — статическая конфигурация API одного типа поставщика.
type Connector struct {
	ID               string
	Name             string
	BaseURL          string
	TestEndpoint     string
	ProductsEndpoint string
	Auth             AuthScheme
}

// Таблица известных коннекторов. Поставщики без публичного API сюда
// сознательно не входят: для них валидация остаётся форматной.
var connectorTable = map[string]Connector{
	"bigbuy": {
		ID:               "bigbuy",
		Name:             "BigBuy",
		BaseURL:          "https://api.bigbuy.eu/rest",
		TestEndpoint:     "/catalog/categories.json",
		ProductsEndpoint: "/catalog/products.json",
		Auth:             AuthScheme{Header: "Authorization", Prefix: "Bearer "},
	},
	"cj_dropshipping": {
		ID:               "cj_dropshipping",
		Name:             "CJ Dropshipping",
		BaseURL:          "https://developers.cjdropshipping.com/api2.0/v1",
		TestEndpoint:     "/product/category",
		ProductsEndpoint: "/product/list",
		Auth:             AuthScheme{Header: "CJ-Access-Token", CredentialKey: "accessToken"},
	},
	"btswholesaler": {
		ID:               "btswholesaler",
		Name:             "BTS Wholesaler",
		BaseURL:          "https://api.btswholesaler.com/v1/api",
		TestEndpoint:     "/getCatalog",
		ProductsEndpoint: "/getProducts",
		Auth:             AuthScheme{Header: "Authorization", Prefix: "Bearer "},
	},
	"matterhorn": {
		ID:               "matterhorn",
		Name:             "Matterhorn",
		BaseURL:          "https://matterhorn-wholesale.com/B2BAPI",
		TestEndpoint:     "/ITEMS",
		ProductsEndpoint: "/ITEMS",
		Auth:             AuthScheme{Header: "Authorization"},
	},
	"vidaxl": {
		ID:               "vidaxl",
		Name:             "VidaXL",
		BaseURL:          "https://api.vidaxl.com/v1",
		TestEndpoint:     "/categories",
		ProductsEndpoint: "/products",
		Auth:             AuthScheme{Header: "X-API-Key"},
	},
	"printful": {
		ID:               "printful",
		Name:             "Printful",
		BaseURL:          "https://api.printful.com",
		TestEndpoint:     "/stores",
		ProductsEndpoint: "/products",
		Auth:             AuthScheme{Header: "Authorization", Prefix: "Bearer "},
	},
	"printify": {
		ID:               "printify",
		Name:             "Printify",
		BaseURL:          "https://api.printify.com/v1",
		TestEndpoint:     "/shops.json",
		ProductsEndpoint: "/catalog/blueprints.json",
		Auth:             AuthScheme{Header: "Authorization", Prefix: "Bearer "},
	},
}

// ConnectorFor — регистронезависимый lookup типа поставщика.
func ConnectorFor(supplierType string) (Connector, bool) {
	c, ok := connectorTable[strings.ToLower(strings.TrimSpace(supplierType))]
	return c, ok
}

// ListConnectors возвращает таблицу для операции list_connectors.
func ListConnectors() []Connector {
	out := make([]Connector, 0, len(connectorTable))
	for _, c := range connectorTable {
		out = append(out, c)
	}
	return out
}
