package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIntegration is a test struct for serialization
type testIntegration struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SyncEnabled bool   `json:"sync_enabled"`
	Requests    int64  `json:"requests"`
}

func setupTestCache(t *testing.T) (CacheClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewCacheClient(rdb)

	return cache, mr
}

func TestNewCacheClient(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewCacheClient(rdb)
	assert.NotNil(t, cache)
}

func TestCacheGet_Success(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	integration := testIntegration{
		ID:          123,
		Name:        "shopify-store",
		SyncEnabled: true,
		Requests:    1000,
	}

	key := BuildCacheKey(CacheKeyIntegration, "123")
	err := cache.Set(ctx, key, integration, TTLIntegration)
	require.NoError(t, err)

	var retrieved testIntegration
	err = cache.Get(ctx, key, &retrieved)
	require.NoError(t, err)

	assert.Equal(t, integration.ID, retrieved.ID)
	assert.Equal(t, integration.Name, retrieved.Name)
	assert.Equal(t, integration.SyncEnabled, retrieved.SyncEnabled)
	assert.Equal(t, integration.Requests, retrieved.Requests)
}

func TestCacheGet_KeyNotFound(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	var retrieved testIntegration
	err := cache.Get(ctx, "nonexistent:key", &retrieved)

	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	key := "test:invalid"
	_ = mr.Set(key, "invalid json {{{") // Intentionally set invalid data for testing

	var retrieved testIntegration
	err := cache.Get(ctx, key, &retrieved)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestCacheSet_Success(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	integration := testIntegration{
		ID:   456,
		Name: "etsy-shop",
	}

	key := BuildCacheKey(CacheKeyIntegration, "456")
	err := cache.Set(ctx, key, integration, TTLIntegration)
	require.NoError(t, err)

	exists := mr.Exists(key)
	assert.True(t, exists)
}

func TestCacheSet_WithTTL(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	integration := testIntegration{ID: 789, Name: "TTL Test"}

	key := BuildCacheKey(CacheKeyIntegration, "789")
	ttl := 1 * time.Second

	err := cache.Set(ctx, key, integration, ttl)
	require.NoError(t, err)

	currentTTL := mr.TTL(key)
	assert.Greater(t, currentTTL, time.Duration(0))
	assert.LessOrEqual(t, currentTTL, ttl)
}

func TestCacheDelete_Success(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	integration := testIntegration{ID: 111, Name: "Delete Test"}
	key := BuildCacheKey(CacheKeyIntegration, "111")
	err := cache.Set(ctx, key, integration, TTLIntegration)
	require.NoError(t, err)

	exists := mr.Exists(key)
	assert.True(t, exists)

	err = cache.Delete(ctx, key)
	require.NoError(t, err)

	exists = mr.Exists(key)
	assert.False(t, exists)
}

func TestCacheDelete_NonExistentKey(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	err := cache.Delete(ctx, "nonexistent:key")
	assert.NoError(t, err)
}

func TestCacheExists(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	rule := map[string]interface{}{"id": 222, "name": "Exists Test"}
	key := BuildCacheKey(CacheKeyRule, "222")
	err := cache.Set(ctx, key, rule, TTLRule)
	require.NoError(t, err)

	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = cache.Exists(ctx, "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		prefix   string
		parts    []string
	}{
		{
			name:     "integration key",
			prefix:   CacheKeyIntegration,
			parts:    []string{"123"},
			expected: "integration:123",
		},
		{
			name:     "rule key",
			prefix:   CacheKeyRule,
			parts:    []string{"456"},
			expected: "rule:456",
		},
		{
			name:     "daily counter key",
			prefix:   CacheKeyRuleDaily,
			parts:    []string{"20260829", "42"},
			expected: "rulecount:day:20260829:42",
		},
		{
			name:     "order counter key",
			prefix:   CacheKeyRuleOrder,
			parts:    []string{"42", "9001"},
			expected: "rulecount:order:42:9001",
		},
		{
			name:     "no parts",
			prefix:   CacheKeyIntegration,
			parts:    []string{},
			expected: "integration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildCacheKey(tt.prefix, tt.parts...)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCacheTTLExpiration(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	integration := testIntegration{ID: 333, Name: "Expire Test"}
	key := BuildCacheKey(CacheKeyIntegration, "expire")
	shortTTL := 100 * time.Millisecond

	err := cache.Set(ctx, key, integration, shortTTL)
	require.NoError(t, err)

	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(200 * time.Millisecond)

	exists, err = cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	var retrieved testIntegration
	err = cache.Get(ctx, key, &retrieved)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheClient_NilRedisClient(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	integration := testIntegration{ID: 1}

	err := cache.Set(ctx, "key", integration, TTLIntegration)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")

	var retrieved testIntegration
	err = cache.Get(ctx, "key", &retrieved)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")

	err = cache.Delete(ctx, "key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")

	exists, err := cache.Exists(ctx, "key")
	assert.Error(t, err)
	assert.False(t, exists)
	assert.Contains(t, err.Error(), "redis client is nil")
}

func TestCacheClient_ComplexStructSerialization(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	type line struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	}

	type snapshot struct {
		CreatedAt time.Time         `json:"created_at"`
		Items     []line            `json:"items"`
		Metadata  map[string]string `json:"metadata"`
		ID        int64             `json:"id"`
		Number    string            `json:"number"`
	}

	original := snapshot{
		ID:     9001,
		Number: "SO-9001",
		Items: []line{
			{SKU: "WIDGET-1", Quantity: 2},
			{SKU: "GADGET-7", Quantity: 1},
		},
		Metadata: map[string]string{
			"channel": "shopify",
			"region":  "us-east",
		},
		CreatedAt: time.Now().Round(time.Second), // Round to second for JSON comparison
	}

	key := BuildCacheKey(CacheKeyIntegration, "complex1")

	err := cache.Set(ctx, key, original, TTLIntegration)
	require.NoError(t, err)

	var retrieved snapshot
	err = cache.Get(ctx, key, &retrieved)
	require.NoError(t, err)

	assert.Equal(t, original.ID, retrieved.ID)
	assert.Equal(t, original.Number, retrieved.Number)
	assert.Equal(t, len(original.Items), len(retrieved.Items))
	assert.Equal(t, original.Items[0].SKU, retrieved.Items[0].SKU)
	assert.Equal(t, original.Metadata["channel"], retrieved.Metadata["channel"])
	assert.True(t, original.CreatedAt.Equal(retrieved.CreatedAt))
}
