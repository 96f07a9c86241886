package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"warnlist/internal/app/version"
	"warnlist/internal/config"
	"warnlist/internal/database"
	"warnlist/internal/domain"
	"warnlist/internal/kvcache"
	"warnlist/internal/listcache"
	"warnlist/internal/lookup"
	"warnlist/internal/support"
	"warnlist/internal/updates"
)

const maxIndicatorLine = 1 << 20

// services holds the wired components of one process.
type services struct {
	store    *database.WarninglistStore
	kv       kvcache.Store
	cache    *listcache.Cache
	updates  *updates.Service
	importer *updates.Importer
	pipeline *lookup.Pipeline
}

func newServices(db *gorm.DB, client redis.UniversalClient, listsDir func() string) *services {
	store := database.NewWarninglistStore(db)

	var kv kvcache.Store
	if client != nil {
		kv = kvcache.NewRedisStore(client, kvcache.WithTimeout(config.GetConfig().CacheTimeout()))
	}

	cache := listcache.New(store, kv)
	service := updates.NewService(store, cache)

	return &services{
		store:    store,
		kv:       kv,
		cache:    cache,
		updates:  service,
		importer: updates.NewImporter(service, listsDir),
		pipeline: lookup.New(cache, kv),
	}
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	listsDirFlag := flag.String("lists-dir", "", "Directory holding <list>/list.json files (overrides settings)")
	importOnceFlag := flag.Bool("import-once", false, "Import the lists directory once and exit")
	checkFlag := flag.Bool("check", false, "Annotate JSON indicators read line by line from stdin and exit")
	filterFlag := flag.Bool("filter", false, "Copy JSON indicators from stdin to stdout, dropping those on an enabled list")
	enableFlag := flag.String("enable", "", "Enable the warninglist with this name or id")
	disableFlag := flag.String("disable", "", "Disable the warninglist with this name or id")
	deleteFlag := flag.String("delete", "", "Delete the warninglist with this name or id")
	flag.Parse()

	log.SetLevel(resolveLogLevel("LOG_LEVEL", log.InfoLevel))
	log.Info("Starting warnlist", "version", version.Get().BuildVersion)

	if err := config.ReadSettings(); err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		client     redis.UniversalClient
		lockClient support.LockClient
	)
	redisClient, err := support.GetRedisClient()
	switch {
	case err == nil:
		client = redisClient
		lockClient = redisClient
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
		config.EnableRedisSynchronization(ctx, redisClient)
		defer config.DisableRedisSynchronization()
	case errors.Is(err, support.ErrRedisNotConfigured):
		log.Warn("Redis not configured, running with the process-local cache only")
	default:
		log.Warn("Redis unavailable, running with the process-local cache only", "error", err)
	}

	listsDir := func() string { return config.GetConfig().ListsDirectory }
	if dir := strings.TrimSpace(*listsDirFlag); dir != "" {
		listsDir = func() string { return dir }
	}

	svc := newServices(db, client, listsDir)
	svc.reportMissingTLDLists(ctx)

	oneShot := false
	if *importOnceFlag {
		oneShot = true
		report, err := svc.importer.Import(ctx)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		log.Info("Warninglist import completed", "applied", len(report.Applied), "unchanged", len(report.Unchanged), "failed", len(report.Failed))
	}

	for _, req := range []struct {
		action listAction
		target string
	}{
		{actionEnable, *enableFlag},
		{actionDisable, *disableFlag},
		{actionDelete, *deleteFlag},
	} {
		if strings.TrimSpace(req.target) == "" {
			continue
		}
		oneShot = true
		if err := svc.manage(ctx, req.action, req.target); err != nil {
			return err
		}
	}

	switch {
	case *checkFlag:
		return svc.check(ctx, os.Stdin, os.Stdout)
	case *filterFlag:
		return svc.filter(ctx, os.Stdin, os.Stdout)
	case oneShot:
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.importer.StartRefreshRoutine(ctx, lockClient)
	}()

	<-ctx.Done()
	<-done

	stats := svc.pipeline.Stats()
	log.Info("Shutting down", "memo_hits", stats.MemoHits, "memo_misses", stats.MemoMisses, "checks", stats.Checks)
	return nil
}

type listAction string

const (
	actionEnable  listAction = "enable"
	actionDisable listAction = "disable"
	actionDelete  listAction = "delete"
)

// manage applies action to the list named by target, which is a list name or id.
func (s *services) manage(ctx context.Context, action listAction, target string) error {
	id, err := s.resolveList(ctx, target)
	if err != nil {
		return err
	}

	switch action {
	case actionEnable:
		err = s.updates.SetEnabled(ctx, id, true)
	case actionDisable:
		err = s.updates.SetEnabled(ctx, id, false)
	case actionDelete:
		err = s.updates.Delete(ctx, id)
	default:
		return fmt.Errorf("unknown list action %q", action)
	}
	if err != nil {
		return fmt.Errorf("%s warninglist %q: %w", action, target, err)
	}

	log.Info("Warninglist updated", "action", action, "id", id)
	return nil
}

// resolveList prefers an exact name match and falls back to a numeric id.
func (s *services) resolveList(ctx context.Context, target string) (uint, error) {
	target = strings.TrimSpace(target)
	list, err := s.store.FindByName(ctx, target)
	if err == nil {
		return list.ID, nil
	}
	if !errors.Is(err, database.ErrListNotFound) {
		return 0, err
	}

	id, convErr := strconv.ParseUint(target, 10, 64)
	if convErr != nil || id == 0 {
		return 0, fmt.Errorf("warninglist %q: %w", target, database.ErrListNotFound)
	}
	return uint(id), nil
}

func (s *services) reportMissingTLDLists(ctx context.Context) {
	missing, err := s.store.MissingTLDLists(ctx)
	if err != nil {
		log.Warn("Could not verify TLD lists", "error", err)
		return
	}
	if len(missing) > 0 {
		log.Warn("TLD lists missing, hostname checks may be incomplete", "lists", missing)
		return
	}

	tlds, err := s.store.FetchTLDs(ctx)
	if err != nil {
		log.Warn("Could not load TLDs", "error", err)
		return
	}
	log.Debug("TLD lists present", "tlds", len(tlds))
}

func readIndicators(in io.Reader) ([]domain.Indicator, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIndicatorLine)

	var items []domain.Indicator
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var item domain.Indicator
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("line %d: invalid indicator: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read indicators: %w", err)
	}
	return items, nil
}

// check annotates one JSON indicator per input line and writes one JSON result per line.
func (s *services) check(ctx context.Context, in io.Reader, out io.Writer) error {
	items, err := readIndicators(in)
	if err != nil {
		return err
	}

	result, err := s.pipeline.Annotate(ctx, items)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for i, item := range items {
		matches := result.Annotations[i]
		if matches == nil {
			matches = []domain.Match{}
		}
		if err := enc.Encode(struct {
			domain.Indicator
			Warninglists []domain.Match `json:"warninglists"`
		}{item, matches}); err != nil {
			return err
		}
	}
	return nil
}

// filter writes back every indicator that no enabled list warns about,
// whatever its detection flag.
func (s *services) filter(ctx context.Context, in io.Reader, out io.Writer) error {
	items, err := readIndicators(in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	dropped := 0
	for _, item := range items {
		keep, err := s.pipeline.Filter(ctx, item)
		if err != nil {
			return err
		}
		if !keep {
			dropped++
			continue
		}
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	log.Debug("Indicators filtered", "read", len(items), "dropped", dropped)
	return nil
}

func resolveLogLevel(envKey string, fallback log.Level) log.Level {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return fallback
	}
	level, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		log.Warn("invalid log level override", "env", envKey, "value", raw)
		return fallback
	}
	return level
}
