package dataflows

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache stores provider responses keyed by source, method and parameters.
type Cache interface {
	Get(ctx context.Context, source, method string, params any, result any) bool
	Set(ctx context.Context, source, method string, params any, data any) error
}

// cacheKey generates a cache key from parameters
func cacheKey(source, method string, params any) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x", source, method, hash)
}

// CacheManager handles file-based caching for data
type CacheManager struct {
	cacheDir string
	ttl      time.Duration
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string, ttl time.Duration) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
		ttl:      ttl,
	}
}

// Get retrieves data from cache if not expired
func (cm *CacheManager) Get(ctx context.Context, source, method string, params any, result any) bool {
	filePath := filepath.Join(cm.cacheDir, cacheKey(source, method, params)+".json")

	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	if time.Since(info.ModTime()) > cm.ttl {
		_ = os.Remove(filePath)
		return false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}

	return json.Unmarshal(data, result) == nil
}

// Set stores data in cache
func (cm *CacheManager) Set(ctx context.Context, source, method string, params any, data any) error {
	filePath := filepath.Join(cm.cacheDir, cacheKey(source, method, params)+".json")
	return SaveDataToFile(data, filePath)
}

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// SaveDataToFile saves structured data to a JSON file
func SaveDataToFile(data any, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, jsonData, 0o644)
}
