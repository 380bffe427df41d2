package catalog

// PackageItem is one orderable package (base letter or digital upgrade).
type PackageItem struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Contents   []string `json:"contents"`
	Available  bool     `json:"available"`
}

// AddonItem is one a-la-carte add-on.
type AddonItem struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Available  bool   `json:"available"`
}

// CatalogData is the on-disk override format (catalog.json).
type CatalogData struct {
	Packages []PackageItem `json:"packages"`
	Addons   []AddonItem   `json:"addons"`
}
