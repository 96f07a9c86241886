package updates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"warnlist/internal/config"
	"warnlist/internal/domain"
	"warnlist/internal/support"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	refreshLockKey         = "warnlist:leader:import"
	defaultRefreshInterval = 24 * time.Hour
	listFileName           = "list.json"
)

// Importer loads list.json files from a directory tree and applies them.
type Importer struct {
	service *Service
	dir     func() string
	once    singleflight.Group
}

// NewImporter reads lists from dir, or from the configured lists directory when dir is nil.
func NewImporter(service *Service, dir func() string) *Importer {
	if dir == nil {
		dir = func() string { return config.GetConfig().ListsDirectory }
	}
	return &Importer{service: service, dir: dir}
}

// LoadDirectory parses every <dir>/*/list.json in name order. Unreadable or
// malformed files are reported by path and skipped.
func LoadDirectory(dir string) ([]domain.ListDefinition, map[string]error, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*", listFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("scan lists directory: %w", err)
	}
	sort.Strings(paths)

	defs := make([]domain.ListDefinition, 0, len(paths))
	failed := make(map[string]error)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			failed[path] = err
			continue
		}
		def, err := ParseListDefinition(data)
		if err != nil {
			failed[path] = err
			continue
		}
		defs = append(defs, def)
	}
	return defs, failed, nil
}

// Import applies the lists directory once. Concurrent calls share one run.
func (i *Importer) Import(ctx context.Context) (ApplyReport, error) {
	v, err, _ := i.once.Do("import", func() (any, error) {
		return i.doImport(ctx)
	})
	if err != nil {
		return ApplyReport{}, err
	}
	return v.(ApplyReport), nil
}

func (i *Importer) doImport(ctx context.Context) (ApplyReport, error) {
	dir := i.dir()
	if dir == "" {
		return ApplyReport{}, errors.New("lists directory is not configured")
	}

	defs, unreadable, err := LoadDirectory(dir)
	if err != nil {
		return ApplyReport{}, err
	}
	for path, err := range unreadable {
		log.Warn("Skipping unreadable warninglist", "path", path, "error", err)
	}

	report, err := i.service.ApplyAll(ctx, defs)
	for path, err := range unreadable {
		report.Failed[path] = err
	}
	return report, err
}

// StartRefreshRoutine imports on startup and then on the configured timer.
// Only the instance holding the leader lock imports. It blocks until ctx is done.
func (i *Importer) StartRefreshRoutine(ctx context.Context, client support.LockClient) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initial := config.GetRefreshInterval()
	if initial <= 0 {
		initial = defaultRefreshInterval
	}
	intervalValue.Store(initial)

	updateSignal := make(chan struct{}, 1)
	updates := config.RefreshIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = defaultRefreshInterval
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	run := func(leaderCtx context.Context) {
		i.runRefreshLoop(leaderCtx, &intervalValue, updateSignal)
	}

	if client == nil {
		run(ctx)
		return
	}

	err := support.RunWithLeader(ctx, client, refreshLockKey, support.DefaultLeadershipTTL, run)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Warninglist refresh routine stopped", "error", err)
	}
}

func (i *Importer) runRefreshLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	current := intervalValue.Load().(time.Duration)

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	i.triggerImport(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.triggerImport(ctx, "scheduled")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval == current {
				continue
			}
			drainTicker(ticker)
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func (i *Importer) triggerImport(ctx context.Context, reason string) {
	report, err := i.Import(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Warninglist import canceled", "reason", reason)
		} else {
			log.Error("Warninglist import failed", "reason", reason, "error", err)
		}
		return
	}

	log.Info("Warninglist import completed",
		"reason", reason,
		"applied", len(report.Applied),
		"unchanged", len(report.Unchanged),
		"failed", len(report.Failed),
	)
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}
