package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"sypbackend/internal/logger"
)

// Built-in price tables, in cents. Codes ending in "1" are the digital
// upgrade of the base package and include everything the base does plus
// the digital file.
var defaultPackagePrices = map[string]int64{
	"A": 3200, "A1": 4100,
	"B": 2700, "B1": 3200,
	"C": 2200, "C1": 2700,
	"D": 1800, "D1": 2300,
	"E": 1200, "E1": 1700,
}

var defaultAddonPrices = map[string]int64{
	"F": 600, "G": 600, "H": 600,
	"I": 1800, "J": 600, "K": 600,
	"L": 700, "M": 800, "N": 1500,
}

var defaultAddonNames = map[string]string{
	"F": "8x10 Print",
	"G": "2x 5x7 Prints",
	"H": "4x 3½x5 Prints",
	"I": "24 Wallets",
	"J": "8 Wallets",
	"K": "16 Mini Wallets",
	"L": "Retouching",
	"M": "8x10 Class Composite",
	"N": "Digital File",
}

var defaultPackageContents = map[string][]string{
	"A": {"1 8x10 Class Composite", "2 8x10", "2 5x7", "8 wallets", "16 mini wallets"},
	"B": {"2 8x10", "4 5x7", "8 wallets", "16 mini wallets"},
	"C": {"1 8x10", "4 5x7", "8 wallets"},
	"D": {"1 8x10", "2 5x7", "8 wallets"},
	"E": {"1 8x10"},
}

const digitalFileContent = "Digital file"

type Service struct {
	packages map[string]PackageItem
	addons   map[string]AddonItem

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	s := &Service{}
	s.loadDefaults()
	return s
}

func (s *Service) loadDefaults() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.packages = make(map[string]PackageItem)
	s.addons = make(map[string]AddonItem)

	for code, price := range defaultPackagePrices {
		base := strings.TrimSuffix(code, "1")
		contents := append([]string(nil), defaultPackageContents[base]...)
		if strings.HasSuffix(code, "1") {
			contents = append(contents, digitalFileContent)
		}
		s.packages[code] = PackageItem{
			Code:       code,
			Name:       "Package " + code,
			PriceCents: price,
			Contents:   contents,
			Available:  true,
		}
	}

	for code, price := range defaultAddonPrices {
		s.addons[code] = AddonItem{
			Code:       code,
			Name:       defaultAddonNames[code],
			PriceCents: price,
			Available:  true,
		}
	}

	s.lastLoaded = time.Now()
}

// LoadFromFile replaces the built-in tables with a catalog.json override.
// Missing or unreadable files leave the defaults in place.
func (s *Service) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog CatalogData
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.packages = make(map[string]PackageItem)
	s.addons = make(map[string]AddonItem)
	for _, item := range catalog.Packages {
		if item.Available {
			s.packages[item.Code] = item
		}
	}
	for _, item := range catalog.Addons {
		if item.Available {
			s.addons[item.Code] = item
		}
	}
	s.lastLoaded = time.Now()

	logger.LogInfo("Loaded catalog from %s: %d packages, %d addons",
		path, len(s.packages), len(s.addons))
	return nil
}

// PackagePrice returns the price in cents for a package code.
func (s *Service) PackagePrice(code string) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, ok := s.packages[code]
	if !ok || !item.Available {
		return 0, fmt.Errorf("unknown package code: %q", code)
	}
	return item.PriceCents, nil
}

// AddonPrice returns the price in cents for an add-on code.
func (s *Service) AddonPrice(code string) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, ok := s.addons[code]
	if !ok || !item.Available {
		return 0, fmt.Errorf("unknown addon code: %q", code)
	}
	return item.PriceCents, nil
}

// AddonName returns the human label for an add-on code ("" if unknown).
func (s *Service) AddonName(code string) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.addons[code].Name
}

// PackageContents returns the breakdown shown to parents for a package code.
func (s *Service) PackageContents(code string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, ok := s.packages[code]
	if !ok || !item.Available {
		return nil, fmt.Errorf("unknown package code: %q", code)
	}
	return append([]string(nil), item.Contents...), nil
}

// ValidateSelection checks a package code plus its add-on codes.
// Add-ons without a package are rejected; so is any unknown code.
func (s *Service) ValidateSelection(pkg string, addons []string) error {
	if pkg == "" {
		if len(addons) > 0 {
			return fmt.Errorf("add-ons require a package selection")
		}
		return fmt.Errorf("missing package selection")
	}

	if _, err := s.PackagePrice(pkg); err != nil {
		return err
	}
	for _, addon := range addons {
		if _, err := s.AddonPrice(addon); err != nil {
			return err
		}
	}
	return nil
}

// SelectionTotal computes the total in cents for one student's selection.
func (s *Service) SelectionTotal(pkg string, addons []string) (int64, error) {
	if err := s.ValidateSelection(pkg, addons); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	total, err := s.PackagePrice(pkg)
	if err != nil {
		return 0, err
	}
	for _, addon := range addons {
		price, err := s.AddonPrice(addon)
		if err != nil {
			return 0, err
		}
		total += price
	}
	return total, nil
}

// AvailablePackages returns all packages sorted by code.
func (s *Service) AvailablePackages() []PackageItem {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var packages []PackageItem
	for _, item := range s.packages {
		packages = append(packages, item)
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Code < packages[j].Code })
	return packages
}

// AvailableAddons returns all add-ons sorted by code.
func (s *Service) AvailableAddons() []AddonItem {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var addons []AddonItem
	for _, item := range s.addons {
		addons = append(addons, item)
	}
	sort.Slice(addons, func(i, j int) bool { return addons[i].Code < addons[j].Code })
	return addons
}

// CacheAge reports how long ago the tables were (re)loaded.
func (s *Service) CacheAge() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded)
}
