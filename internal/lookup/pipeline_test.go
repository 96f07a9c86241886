package lookup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"warnlist/internal/config"
	"warnlist/internal/domain"
	"warnlist/internal/kvcache"
	"warnlist/internal/listcache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	mu      sync.Mutex
	lists   []domain.ListSummary
	entries map[uint][]string
	err     error
}

func (m *memoryStore) FindEnabled(context.Context) ([]domain.ListSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.ListSummary(nil), m.lists...), nil
}

func (m *memoryStore) FindEntries(_ context.Context, id uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.entries[id]...), nil
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		lists: []domain.ListSummary{
			{ID: 1, Name: "Private ranges", Type: domain.ComparisonCIDR, Types: []string{"ip-src", "ip-dst"}},
			{ID: 2, Name: "Popular domains", Type: domain.ComparisonHostname, Types: []string{"domain", "hostname"}},
			{ID: 3, Name: "Empty file hashes", Type: domain.ComparisonString, Types: []string{"md5", "malware-sample"}},
		},
		entries: map[uint][]string{
			1: {"10.0.0.0/8", "10.1.0.0/16"},
			2: {"example.com"},
			3: {"deadbeef"},
		},
	}
}

func settingsWith(warnForAll bool) func() config.Config {
	return func() config.Config {
		return config.Config{WarnForAll: warnForAll, MemoTTLSeconds: 3600}
	}
}

func newRedisKV(t *testing.T) (kvcache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kvcache.NewRedisStore(client, kvcache.WithTimeout(time.Second)), mr
}

func newPipeline(t *testing.T, store *memoryStore, withKV bool) (*Pipeline, *listcache.Cache, *miniredis.Miniredis) {
	t.Helper()
	if !withKV {
		cache := listcache.New(store, nil)
		return New(cache, nil, WithSettings(settingsWith(false))), cache, nil
	}
	kv, mr := newRedisKV(t)
	cache := listcache.New(store, kv)
	return New(cache, kv, WithSettings(settingsWith(false))), cache, mr
}

func TestAnnotateMatchesPerComparisonType(t *testing.T) {
	items := []domain.Indicator{
		{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true},
		{Type: "ip-dst", Value: "11.0.0.0", ToIDS: true},
		{Type: "hostname", Value: "a.b.example.com", ToIDS: true},
		{Type: "malware-sample", Value: "evil.exe|deadbeef", ToIDS: true},
		{Type: "ip-dst", Value: "10.200.0.1", ToIDS: true},
	}
	want := [][]domain.Match{
		{{ListID: 1, ListName: "Private ranges", Entry: "10.1.0.0/16", Value: "10.1.2.3"}},
		nil,
		{{ListID: 2, ListName: "Popular domains", Entry: "example.com", Value: "a.b.example.com"}},
		{{ListID: 3, ListName: "Empty file hashes", Entry: "deadbeef", Value: "deadbeef"}},
		{{ListID: 1, ListName: "Private ranges", Entry: "10.0.0.0/8", Value: "10.200.0.1"}},
	}
	wantLists := map[uint]string{1: "Private ranges", 2: "Popular domains", 3: "Empty file hashes"}

	for _, withKV := range []bool{false, true} {
		t.Run(fmt.Sprintf("cached=%t", withKV), func(t *testing.T) {
			pipeline, _, _ := newPipeline(t, newMemoryStore(), withKV)

			result, err := pipeline.Annotate(context.Background(), items)
			if err != nil {
				t.Fatalf("Annotate: %v", err)
			}
			if !reflect.DeepEqual(result.Annotations, want) {
				t.Fatalf("Annotations = %+v\nwant %+v", result.Annotations, want)
			}
			if !reflect.DeepEqual(result.Lists, wantLists) {
				t.Fatalf("Lists = %v, want %v", result.Lists, wantLists)
			}
		})
	}
}

func TestAnnotateRespectsDetectionFlag(t *testing.T) {
	store := newMemoryStore()
	item := domain.Indicator{Type: "ip-src", Value: "10.9.9.9"}

	pipeline := New(listcache.New(store, nil), nil, WithSettings(settingsWith(false)))
	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{item})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(result.Annotations[0]) != 0 || pipeline.Stats().Checks != 0 {
		t.Fatalf("indicator without detection flag was checked: %+v", result)
	}

	pipeline = New(listcache.New(store, nil), nil, WithSettings(settingsWith(true)))
	result, err = pipeline.Annotate(context.Background(), []domain.Indicator{item})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(result.Annotations[0]) != 1 {
		t.Fatalf("warn_for_all did not check the indicator: %+v", result)
	}
}

func TestAnnotateSkipsUncoveredTypes(t *testing.T) {
	pipeline, _, _ := newPipeline(t, newMemoryStore(), false)

	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{{Type: "email-src", Value: "deadbeef", ToIDS: true}})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if result.Annotations[0] != nil || pipeline.Stats().Checks != 0 {
		t.Fatalf("uncovered type should not be checked: %+v", result)
	}
}

func TestAnnotateWithoutEnabledLists(t *testing.T) {
	store := newMemoryStore()
	store.lists = nil
	pipeline, _, _ := newPipeline(t, store, true)

	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{{Type: "ip-dst", Value: "10.0.0.1", ToIDS: true}})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(result.Lists) != 0 || result.Annotations[0] != nil {
		t.Fatalf("expected an empty result, got %+v", result)
	}
}

func TestAnnotateIsIdempotentAndServedFromMemo(t *testing.T) {
	pipeline, _, _ := newPipeline(t, newMemoryStore(), true)
	ctx := context.Background()
	items := []domain.Indicator{
		{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true},
		{Type: "domain", Value: "unrelated.org", ToIDS: true},
	}

	first, err := pipeline.Annotate(ctx, items)
	if err != nil {
		t.Fatalf("first Annotate: %v", err)
	}
	checks := pipeline.Stats().Checks
	if checks == 0 {
		t.Fatal("first run should invoke the matcher")
	}

	second, err := pipeline.Annotate(ctx, items)
	if err != nil {
		t.Fatalf("second Annotate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second run differs:\n%+v\n%+v", first, second)
	}

	stats := pipeline.Stats()
	if stats.Checks != checks {
		t.Fatalf("second run invoked the matcher %d times", stats.Checks-checks)
	}
	if stats.MemoHits != 1 || stats.NegativeHits != 1 || stats.MemoMisses != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestNegativeResultIsCachedAsEmptyPayload(t *testing.T) {
	pipeline, _, mr := newPipeline(t, newMemoryStore(), true)
	item := domain.Indicator{Type: "ip-dst", Value: "192.0.2.1", ToIDS: true}

	if _, err := pipeline.Annotate(context.Background(), []domain.Indicator{item}); err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	key := MemoKey(item.Type, item.Value)
	if !mr.Exists(key) {
		t.Fatal("no-match verdict was not cached")
	}
	if got, _ := mr.Get(key); got != "" {
		t.Fatalf("negative payload = %q, want empty", got)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("memo TTL = %s, want 1h", ttl)
	}
	if mr.Exists(MemoKey(item.Type, "192.0.2.2")) {
		t.Fatal("unrelated value must stay absent")
	}
}

func TestMemoPayloadFormat(t *testing.T) {
	pipeline, _, mr := newPipeline(t, newMemoryStore(), true)
	item := domain.Indicator{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true}

	if _, err := pipeline.Annotate(context.Background(), []domain.Indicator{item}); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	got, err := mr.Get(MemoKey(item.Type, item.Value))
	if err != nil {
		t.Fatalf("memo missing: %v", err)
	}
	if got != `{"1":["10.1.0.0/16","10.1.2.3"]}` {
		t.Fatalf("memo payload = %s", got)
	}
}

func TestMemoHitSkipsListsNoLongerEnabled(t *testing.T) {
	store := newMemoryStore()
	pipeline, _, mr := newPipeline(t, store, true)
	item := domain.Indicator{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true}

	if err := mr.Set(MemoKey(item.Type, item.Value), `{"1":["10.1.0.0/16","10.1.2.3"],"42":["x","y"]}`); err != nil {
		t.Fatalf("seed memo: %v", err)
	}

	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{item})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(result.Annotations[0]) != 1 || result.Annotations[0][0].ListID != 1 {
		t.Fatalf("Annotations = %+v", result.Annotations)
	}
	if _, ok := result.Lists[42]; ok {
		t.Fatal("list 42 is not enabled and must not be reported")
	}
}

func TestInvalidateReflectsNewEntries(t *testing.T) {
	store := newMemoryStore()
	pipeline, cache, _ := newPipeline(t, store, true)
	ctx := context.Background()
	items := []domain.Indicator{
		{Type: "hostname", Value: "www.example.net", ToIDS: true},
		{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true},
	}

	first, err := pipeline.Annotate(ctx, items)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if first.Annotations[0] != nil {
		t.Fatalf("unexpected match before update: %+v", first.Annotations[0])
	}

	store.mu.Lock()
	store.entries[2] = []string{"example.net"}
	store.mu.Unlock()
	if err := cache.Invalidate(ctx, 2); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	second, err := pipeline.Annotate(ctx, items)
	if err != nil {
		t.Fatalf("Annotate after invalidate: %v", err)
	}
	if len(second.Annotations[0]) != 1 || second.Annotations[0][0].Entry != "example.net" {
		t.Fatalf("updated list not reflected: %+v", second.Annotations[0])
	}
	if !reflect.DeepEqual(first.Annotations[1], second.Annotations[1]) {
		t.Fatalf("other list result changed: %+v vs %+v", first.Annotations[1], second.Annotations[1])
	}
}

func TestAnnotateFallsBackWhenCacheIsDown(t *testing.T) {
	pipeline, _, mr := newPipeline(t, newMemoryStore(), true)
	mr.SetError("ERR simulated outage")

	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true}})
	if err != nil {
		t.Fatalf("Annotate during outage: %v", err)
	}
	if len(result.Annotations[0]) != 1 {
		t.Fatalf("degraded result = %+v", result)
	}
	if pipeline.Stats().Degraded == 0 {
		t.Fatal("degraded mode was not recorded")
	}
}

type failingReads struct {
	kvcache.Store
}

func (f failingReads) BatchGet(context.Context, []string) ([]kvcache.Result, error) {
	return nil, fmt.Errorf("%w: read timeout", kvcache.ErrUnavailable)
}

func TestAnnotateFallsBackWhenBatchedReadFails(t *testing.T) {
	kv, _ := newRedisKV(t)
	flaky := failingReads{Store: kv}
	cache := listcache.New(newMemoryStore(), flaky)
	pipeline := New(cache, flaky, WithSettings(settingsWith(false)))

	result, err := pipeline.Annotate(context.Background(), []domain.Indicator{{Type: "md5", Value: "deadbeef", ToIDS: true}})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(result.Annotations[0]) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if stats := pipeline.Stats(); stats.Degraded != 1 || stats.MemoMisses != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStoreFailureIsSurfaced(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("database is down")

	for _, withKV := range []bool{false, true} {
		pipeline, _, _ := newPipeline(t, store, withKV)
		_, err := pipeline.Annotate(context.Background(), []domain.Indicator{{Type: "ip-dst", Value: "10.1.2.3", ToIDS: true}})
		if !errors.Is(err, store.err) {
			t.Fatalf("cached=%t: Annotate error = %v, want store error", withKV, err)
		}
	}
}

func TestFilterIgnoresDetectionFlag(t *testing.T) {
	pipeline, _, _ := newPipeline(t, newMemoryStore(), true)
	ctx := context.Background()

	keep, err := pipeline.Filter(ctx, domain.Indicator{Type: "domain", Value: "mail.example.com"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if keep {
		t.Fatal("a listed value must be filtered out")
	}

	keep, err = pipeline.Filter(ctx, domain.Indicator{Type: "domain", Value: "malicious.test"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !keep {
		t.Fatal("an unlisted value must be kept")
	}
}

func TestMemoKey(t *testing.T) {
	key := MemoKey("ip-dst", "10.0.0.1")
	if !strings.HasPrefix(key, listcache.MemoKeyPrefix) {
		t.Fatalf("key %q lacks the memo prefix", key)
	}
	if got := len(key) - len(listcache.MemoKeyPrefix); got != 2*memoDigestSize {
		t.Fatalf("digest length = %d, want %d hex characters", got, 2*memoDigestSize)
	}
	if key != MemoKey("ip-dst", "10.0.0.1") {
		t.Fatal("MemoKey is not deterministic")
	}
	if key == MemoKey("ip-src", "10.0.0.1") {
		t.Fatal("MemoKey must depend on the indicator type")
	}
}
