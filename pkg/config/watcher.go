package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

// Change describes a configuration update event.
// Only a subset of fields may have changed; see Fields for the list of keys.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

const (
	subBuf   = 4
	debounce = 250 * time.Millisecond
)

var (
	mReloads  = metrics.Default.Counter("config_reload_total", "Total number of applied config reloads")
	mFailures = metrics.Default.Counter("config_reload_failures_total", "Total number of rejected config reloads")
)

// Watcher reloads the .env style file named by CONFIG_FILE whenever it changes
// on disk and publishes the new snapshot to subscribers. Invalid files are
// reported as a Change with Err set and the previous snapshot stays current.
type Watcher struct {
	mu       sync.RWMutex
	cur      *Config
	subs     []chan Change
	filePath string
	fsw      *fsnotify.Watcher
	done     chan struct{}
	closed   bool
	log      *logging.ComponentLogger
}

func NewWatcher(filePath string, cur *Config, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.NewNop()
	}
	if cur == nil {
		cur = Load()
	}
	return &Watcher{
		cur:      cur,
		filePath: strings.TrimSpace(filePath),
		done:     make(chan struct{}),
		log:      log.WithComponent("config"),
	}
}

// Current returns the latest valid snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Subscribe returns a channel to receive Change notifications.
// Caller should drain the channel until it is closed.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, subBuf)
	if w.closed {
		close(ch)
		return ch
	}
	w.subs = append(w.subs, ch)
	return ch
}

// Start watches the file's directory, since editors and config management
// usually replace files instead of writing in place. It is a no-op without a
// file.
func (w *Watcher) Start() error {
	if w.filePath == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.filePath)); err != nil {
		fsw.Close()
		return fmt.Errorf("config watcher: watch %s: %w", w.filePath, err)
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.loop(fsw)
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	target := filepath.Clean(w.filePath)
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.Reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", logging.Error(err))
		}
	}
}

// Reload re-reads the file into the environment, rebuilds the config and
// notifies subscribers when a watched key changed.
func (w *Watcher) Reload() {
	if w.filePath != "" {
		if err := godotenv.Overload(w.filePath); err != nil {
			mFailures.Inc()
			w.notify(Change{Old: w.Current(), Err: fmt.Errorf("read %s: %w", w.filePath, err)})
			return
		}
	}

	newCfg := Load()
	if err := newCfg.Validate(); err != nil {
		mFailures.Inc()
		w.log.Warn("rejected config reload", logging.Error(err))
		w.notify(Change{Old: w.Current(), New: newCfg, Err: fmt.Errorf("invalid config: %w", err)})
		return
	}

	w.mu.Lock()
	old := w.cur
	fields := diffKeys(old, newCfg)
	if len(fields) == 0 {
		w.mu.Unlock()
		return
	}
	w.cur = newCfg
	w.mu.Unlock()

	mReloads.Inc()
	w.log.Info("config reloaded", logging.Strings("fields", fields))
	w.notify(Change{Old: old, New: newCfg, Fields: fields})
}

// Close stops the watcher and closes subscriber channels.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}
	for _, s := range w.subs {
		close(s)
	}
	w.subs = nil
}

func (w *Watcher) notify(chg Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.subs {
		select {
		case s <- chg:
		default:
			// slow subscriber; it will see the next change
		}
	}
}

func diffKeys(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	var f []string
	appendIf := func(cond bool, name string) {
		if cond {
			f = append(f, name)
		}
	}
	appendIf(a.MaxRetries != b.MaxRetries, "OPENAI_MAX_RETRIES")
	appendIf(a.BackoffBase != b.BackoffBase, "OPENAI_BACKOFF_BASE_MS")
	appendIf(a.BackoffMax != b.BackoffMax, "OPENAI_BACKOFF_MAX_MS")
	appendIf(a.TargetRPM != b.TargetRPM, "OPENAI_TARGET_RPM")
	appendIf(a.TargetTPM != b.TargetTPM, "OPENAI_TARGET_TPM")
	appendIf(a.AnalyzeDefaultLimit != b.AnalyzeDefaultLimit, "ANALYZE_DEFAULT_LIMIT")
	appendIf(a.AnalyzeMaxLimit != b.AnalyzeMaxLimit, "ANALYZE_MAX_LIMIT")
	appendIf(a.AnalyzeBatchSize != b.AnalyzeBatchSize, "ANALYZE_BATCH_SIZE")
	appendIf(a.AnalyzeMaxBatches != b.AnalyzeMaxBatches, "ANALYZE_MAX_BATCHES")
	appendIf(a.AnalyzeProviderRatio != b.AnalyzeProviderRatio, "ANALYZE_PROVIDER_RATIO")
	appendIf(a.AnalyzeMaxReviewLength != b.AnalyzeMaxReviewLength, "ANALYZE_MAX_REVIEW_LENGTH")
	appendIf(a.AnalyzeMaxOutputTokens != b.AnalyzeMaxOutputTokens, "ANALYZE_MAX_OUTPUT_TOKENS")
	appendIf(a.AnalyzePostBatchDelay != b.AnalyzePostBatchDelay, "ANALYZE_POST_BATCH_DELAY_MS")
	appendIf(a.AnalyzeClaimTTL != b.AnalyzeClaimTTL, "ANALYZE_CLAIM_TTL")
	appendIf(a.LogLevel != b.LogLevel, "LOG_LEVEL")
	return f
}
