package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

type stubStore struct {
	mu       sync.Mutex
	products map[int64]model.Product
	nextID   int64
	lists    atomic.Int32
	listErr  error
	release  chan struct{}
}

func newStubStore(products ...model.Product) *stubStore {
	s := &stubStore{products: make(map[int64]model.Product)}
	for _, p := range products {
		s.products[p.ID] = p
		if p.ID > s.nextID {
			s.nextID = p.ID
		}
	}
	return s
}

func (s *stubStore) ListAvailable(ctx context.Context) ([]model.Product, error) {
	s.lists.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.listErr != nil {
		return nil, s.listErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Product
	for _, p := range s.products {
		if p.Stock > 0 {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *stubStore) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &p, nil
}

func (s *stubStore) CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := model.Product{ID: s.nextID, Name: name, Price: price, Stock: stock}
	s.products[p.ID] = p
	return &p, nil
}

func (s *stubStore) setStock(id int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Stock = stock
	s.products[id] = p
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_MissSetGetDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	products := []model.Product{{ID: 1, Name: "Coffee", Price: 25000, Stock: 3}}
	require.NoError(t, cache.Set(ctx, products))
	assert.True(t, mr.Exists(availableKey))
	assert.Equal(t, time.Minute, mr.TTL(availableKey))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, products, got)

	require.NoError(t, cache.Delete(ctx))
	_, err = cache.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, []model.Product{{ID: 1, Name: "Tea", Stock: 1}}))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(availableKey, "{not json"))

	_, err := cache.Get(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestService_ListAvailableUsesCache(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := newStubStore(model.Product{ID: 1, Name: "Coffee", Price: 25000, Stock: 3})
	svc := New(store, cache, nil)
	ctx := context.Background()

	first, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	second, err := svc.ListAvailable(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.lists.Load())
}

func TestService_InvalidateRefreshesSnapshot(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := newStubStore(model.Product{ID: 1, Name: "Coffee", Price: 25000, Stock: 1})
	svc := New(store, cache, nil)
	ctx := context.Background()

	products, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)

	store.setStock(1, 0)
	require.NoError(t, svc.Invalidate(ctx))

	products, err = svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, int32(2), store.lists.Load())
}

func TestService_GetByIDIsAlwaysLive(t *testing.T) {
	cache, _ := setupTestRedis(t)
	store := newStubStore(model.Product{ID: 1, Name: "Coffee", Price: 25000, Stock: 5})
	svc := New(store, cache, nil)
	ctx := context.Background()

	_, err := svc.ListAvailable(ctx)
	require.NoError(t, err)

	store.setStock(1, 2)
	p, err := svc.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	_, err = svc.GetByID(ctx, 42)
	assert.ErrorIs(t, err, model.ErrProductNotFound)
}

func TestService_ConcurrentMissesShareOneLoad(t *testing.T) {
	store := newStubStore(model.Product{ID: 1, Name: "Coffee", Price: 25000, Stock: 5})
	store.release = make(chan struct{})
	svc := New(store, nil, nil)

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			products, err := svc.ListAvailable(context.Background())
			assert.NoError(t, err)
			assert.Len(t, products, 1)
		}()
	}

	require.Eventually(t, func() bool { return store.lists.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.lists.Load())
}

func TestService_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	store := newStubStore(model.Product{ID: 1, Name: "Coffee", Price: 25000, Stock: 5})
	store.release = make(chan struct{})
	svc := New(store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.ListAvailable(ctx)
		first <- err
	}()
	require.Eventually(t, func() bool { return store.lists.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		products []model.Product
		err      error
	}
	second := make(chan result, 1)
	go func() {
		products, err := svc.ListAvailable(context.Background())
		second <- result{products, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(store.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.products, 1)
	assert.Equal(t, int32(1), store.lists.Load())
}

func TestService_WorksWithoutCache(t *testing.T) {
	store := newStubStore()
	store.listErr = errors.New("db down")
	svc := New(store, nil, nil)

	_, err := svc.ListAvailable(context.Background())
	assert.Error(t, err)
	assert.NoError(t, svc.Invalidate(context.Background()))
}

func TestService_CreateProduct(t *testing.T) {
	cache, mr := setupTestRedis(t)
	store := newStubStore()
	svc := New(store, cache, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, nil))

	p, err := svc.CreateProduct(ctx, "Bagel", 9000, 4)
	require.NoError(t, err)
	assert.Equal(t, "Bagel", p.Name)
	assert.False(t, mr.Exists(availableKey))

	_, err = svc.CreateProduct(ctx, "", 100, 1)
	assert.ErrorIs(t, err, model.ErrInvalidProduct)
	_, err = svc.CreateProduct(ctx, "Broken", 100, -1)
	assert.ErrorIs(t, err, model.ErrInvalidProduct)
}
