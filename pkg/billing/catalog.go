package billing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"gopkg.in/yaml.v3"
)

// PriceLookup maps a plan to its Stripe price ID
type PriceLookup interface {
	PriceID(plan Plan) (string, bool)
}

type catalogFile struct {
	Prices map[string]string `yaml:"prices"`
}

// Catalog is a reloadable plan to price map
type Catalog struct {
	mu     sync.RWMutex
	prices map[Plan]string
	path   string
}

// NewStaticCatalog builds a catalog from explicit price IDs. Plans with an
// empty price are left out.
func NewStaticCatalog(prices map[Plan]string) *Catalog {
	c := &Catalog{prices: make(map[Plan]string, len(prices))}
	for plan, price := range prices {
		if price != "" {
			c.prices[plan] = price
		}
	}
	return c
}

// ParseCatalog decodes a YAML catalog document:
//
//	prices:
//	  STARTER: price_123
//	  PRO: price_456
func ParseCatalog(data []byte) (map[Plan]string, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse price catalog: %w", err)
	}
	if len(file.Prices) == 0 {
		return nil, fmt.Errorf("price catalog has no prices")
	}

	prices := make(map[Plan]string, len(file.Prices))
	for name, price := range file.Prices {
		plan := Plan(name)
		if !plan.Valid() {
			return nil, fmt.Errorf("price catalog: unknown plan %q", name)
		}
		if price == "" {
			return nil, fmt.Errorf("price catalog: empty price for plan %s", name)
		}
		prices[plan] = price
	}
	return prices, nil
}

// LoadCatalogFile reads and parses the catalog at path
func LoadCatalogFile(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// PriceID returns the price for plan
func (c *Catalog) PriceID(plan Plan) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[plan]
	return price, ok
}

// Reload re-reads the backing file. The current prices are kept on error.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return fmt.Errorf("catalog has no backing file")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read price catalog: %w", err)
	}
	prices, err := ParseCatalog(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.prices = prices
	c.mu.Unlock()
	return nil
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The directory is watched so editors that replace the file are picked up.
func (c *Catalog) Watch(ctx context.Context, logger *observability.Logger) error {
	if c.path == "" {
		return fmt.Errorf("catalog has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch price catalog: %w", err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(logger, "catalog watcher")

		name := filepath.Base(c.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					logger.WithError(err).Warn("price catalog reload failed, keeping previous prices")
					continue
				}
				logger.WithField("path", c.path).Info("price catalog reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("price catalog watcher error")
			}
		}
	}()

	return nil
}
