// Package refiner asks an OpenAI-compatible LLM to re-scan lines whose
// deterministic verdict may be wrong, validates what comes back and caches
// the accepted refinements.
//
// A Refiner owns its cache and cooldown state behind one mutex. Network calls
// happen outside the lock, and at most one call per cache key is in flight:
// concurrent callers asking for the same line wait for the first one.
package refiner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/metermeter/internal/chunker"
	"github.com/valpere/metermeter/internal/meter"
	"github.com/valpere/metermeter/internal/store"
	"github.com/valpere/metermeter/internal/validator"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultTemperature      = 0.1
	DefaultChunkSize        = 3
	DefaultRetryAttempts    = 1
	DefaultMaxSingleRetries = 8
	DefaultErrorCooldown    = 3 * time.Second
	DefaultCacheSize        = 1024
)

// Config configures a Refiner.
type Config struct {
	Endpoint    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	// ChunkSize is the number of lines per batched request.
	ChunkSize int
	// RetryAttempts bounds the single-line retries per rejected line.
	RetryAttempts int
	// MaxSingleRetries bounds how many rejected lines are retried alone.
	MaxSingleRetries int
	// ErrorCooldown suspends calls after a round in which nothing succeeded.
	// A negative value disables the cooldown.
	ErrorCooldown time.Duration
	CacheSize     int
	PromptVersion string
	// DebugDumpPath overrides where failed exchanges are written.
	DebugDumpPath string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.MaxSingleRetries <= 0 {
		c.MaxSingleRetries = DefaultMaxSingleRetries
	}
	if c.ErrorCooldown == 0 {
		c.ErrorCooldown = DefaultErrorCooldown
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.PromptVersion == "" {
		c.PromptVersion = DefaultPromptVersion
	}
	return c
}

// Params are per-call settings. Zero values fall back to the Config.
type Params struct {
	Timeout     time.Duration
	Temperature *float64
	// DominantMeter, when known, is passed to the model as poem context.
	DominantMeter string
}

// Store persists refinements across processes.
type Store interface {
	GetCached(ctx context.Context, key string) ([]byte, error)
	PutCached(ctx context.Context, e store.CacheEntry) error
}

// Refiner is safe for concurrent use.
type Refiner struct {
	cfg    Config
	client Completer
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	cache         *lru.Cache[string, *validator.Refinement]
	inflight      map[string]chan struct{}
	cooldownUntil time.Time
	lastError     string
}

// New creates a refiner. A nil client is derived from the endpoint; st and
// logger may be nil.
func New(cfg Config, client Completer, st Store, logger *zap.Logger) (*Refiner, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: endpoint/model required", ErrNotConfigured)
	}
	cfg = cfg.withDefaults()

	cache, err := lru.New[string, *validator.Refinement](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	if client == nil {
		// each call carries its own deadline
		client = NewCompleter(cfg.Endpoint, cfg.APIKey, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{
		cfg:      cfg,
		client:   client,
		store:    st,
		logger:   logger.With(zap.String("model", cfg.Model)),
		now:      time.Now,
		cache:    cache,
		inflight: make(map[string]chan struct{}),
	}, nil
}

// LastError is the most recent transport or validation failure.
func (r *Refiner) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// CooldownRemaining is how long calls stay suspended, zero when they are not.
func (r *Refiner) CooldownRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(0, r.cooldownUntil.Sub(r.now()))
}

// ClearCache drops the in-memory cache and resets the cooldown.
func (r *Refiner) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
	r.cooldownUntil = time.Time{}
	r.lastError = ""
}

// CacheKey is the cache key for a line under this refiner's model and
// prompt version.
func (r *Refiner) CacheKey(line string) string {
	return CacheKey(r.cfg.PromptVersion, r.cfg.Model, line)
}

// CacheKey hashes prompt version, model and the normalised line.
func CacheKey(promptVersion, model, line string) string {
	material := promptVersion + "\n" + model + "\n" + norm.NFC.String(strings.TrimSpace(line))
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// RefineLine is RefineLines for a single line. It returns nil when the line
// could not be refined.
func (r *Refiner) RefineLine(ctx context.Context, a *meter.LineAnalysis, p Params) (*validator.Refinement, error) {
	out, err := r.RefineLines(ctx, []*meter.LineAnalysis{a}, p)
	if err != nil {
		return nil, err
	}
	return out[a.LineNo], nil
}

// claim holds the lines this call is responsible for fetching, grouped by
// cache key, and the keys another caller is already fetching.
type claim struct {
	order   []string
	owned   map[string][]*meter.LineAnalysis
	waiting map[string][]*meter.LineAnalysis
	chans   map[string]chan struct{}
}

// RefineLines returns validated refinements keyed by line number. Lines
// missing from the result could not be refined. Cached lines never reach
// the network.
//
// The error is ErrCooldown while backing off, or wraps ErrInvalidResponse
// when the model answered but no line validated. Transport failures and
// timeouts are not returned; they leave lines unrefined and are reported by
// LastError.
func (r *Refiner) RefineLines(ctx context.Context, lines []*meter.LineAnalysis, p Params) (map[int]*validator.Refinement, error) {
	out := make(map[int]*validator.Refinement, len(lines))
	if len(lines) == 0 {
		return out, nil
	}

	c, err := r.claim(lines, out)
	if err != nil {
		return nil, err
	}

	var fetchErr error
	if len(c.order) > 0 {
		var fresh map[string]*validator.Refinement
		fresh, fetchErr = r.fetchOwned(ctx, c, p)
		for key, group := range c.owned {
			if ref, ok := fresh[key]; ok {
				for _, a := range group {
					out[a.LineNo] = ref
				}
			}
		}
	}

	for key, group := range c.waiting {
		select {
		case <-c.chans[key]:
		case <-ctx.Done():
			return out, ctx.Err()
		}
		r.mu.Lock()
		ref, ok := r.cache.Get(key)
		r.mu.Unlock()
		if ok {
			for _, a := range group {
				out[a.LineNo] = ref
			}
		}
	}

	if len(out) > 0 {
		return out, nil
	}
	return out, fetchErr
}

// claim serves cache hits into out and registers in-flight ownership for
// every other key.
func (r *Refiner) claim(lines []*meter.LineAnalysis, out map[int]*validator.Refinement) (claim, error) {
	c := claim{
		owned:   make(map[string][]*meter.LineAnalysis),
		waiting: make(map[string][]*meter.LineAnalysis),
		chans:   make(map[string]chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if now := r.now(); now.Before(r.cooldownUntil) {
		return c, fmt.Errorf("%w: retry in %s", ErrCooldown, r.cooldownUntil.Sub(now).Round(time.Millisecond))
	}

	for _, a := range lines {
		key := r.CacheKey(a.Text)
		if ref, ok := r.cache.Get(key); ok {
			out[a.LineNo] = ref
			continue
		}
		if _, mine := c.owned[key]; mine {
			c.owned[key] = append(c.owned[key], a)
			continue
		}
		if ch, ok := r.inflight[key]; ok {
			c.waiting[key] = append(c.waiting[key], a)
			c.chans[key] = ch
			continue
		}
		r.inflight[key] = make(chan struct{})
		c.owned[key] = []*meter.LineAnalysis{a}
		c.order = append(c.order, key)
	}
	return c, nil
}

// fetchOwned resolves owned keys from the persistent store and then the
// network, publishes the results and releases the claims.
func (r *Refiner) fetchOwned(ctx context.Context, c claim, p Params) (map[string]*validator.Refinement, error) {
	fresh := make(map[string]*validator.Refinement, len(c.order))
	attempted, hadTimeout := false, false
	var fetchErr error

	defer func() {
		r.settle(c.order, fresh, attempted && !hadTimeout)
	}()

	var pending []*meter.LineAnalysis
	for _, key := range c.order {
		if ref, ok := r.loadPersisted(ctx, key); ok {
			fresh[key] = ref
			continue
		}
		pending = append(pending, c.owned[key][0])
	}
	if len(pending) == 0 {
		return fresh, nil
	}

	attempted = true
	got, timedOut, err := r.fetch(ctx, pending, p)
	hadTimeout = timedOut || ctx.Err() != nil
	fetchErr = err
	for _, a := range pending {
		if ref, ok := got[a.LineNo]; ok {
			key := r.CacheKey(a.Text)
			fresh[key] = ref
			r.persist(ctx, key, a.Text, ref)
		}
	}
	return fresh, fetchErr
}

// settle stores fresh results, wakes waiters and starts the cooldown when a
// network round produced nothing.
func (r *Refiner) settle(keys []string, fresh map[string]*validator.Refinement, mayCooldown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		if ref, ok := fresh[key]; ok {
			r.cache.Add(key, ref)
		}
		if ch, ok := r.inflight[key]; ok {
			close(ch)
			delete(r.inflight, key)
		}
	}
	if mayCooldown && len(fresh) == 0 && r.cfg.ErrorCooldown > 0 {
		r.cooldownUntil = r.now().Add(r.cfg.ErrorCooldown)
		r.logger.Warn("llm refinement failed, cooling down",
			zap.Duration("cooldown", r.cfg.ErrorCooldown),
			zap.String("last_error", r.lastError))
	}
}

// exchange is one request/response pair kept for the debug dump.
type exchange struct {
	reason  string
	request ChatRequest
	raw     string
}

// fetch sends pending lines in chunks, then retries rejected lines alone.
func (r *Refiner) fetch(ctx context.Context, pending []*meter.LineAnalysis, p Params) (map[int]*validator.Refinement, bool, error) {
	got := make(map[int]*validator.Refinement, len(pending))
	hadTimeout, responded := false, false
	var last exchange
	var rejected []*meter.LineAnalysis

	for _, chunk := range chunker.Chunk(pending, r.cfg.ChunkSize) {
		if ctx.Err() != nil {
			break
		}
		accepted, ex, err := r.call(ctx, chunk, p)
		if err != nil {
			hadTimeout = hadTimeout || isTimeout(err)
			continue
		}
		responded = true
		for _, a := range chunk {
			if ref, ok := accepted[a.LineNo]; ok {
				got[a.LineNo] = ref
			} else {
				rejected = append(rejected, a)
			}
		}
		if len(accepted) == 0 {
			last = ex
		}
	}

	if len(rejected) > r.cfg.MaxSingleRetries {
		rejected = rejected[:r.cfg.MaxSingleRetries]
	}
	for _, a := range rejected {
		for attempt := 0; attempt < r.cfg.RetryAttempts && ctx.Err() == nil; attempt++ {
			accepted, ex, err := r.call(ctx, []*meter.LineAnalysis{a}, p)
			if err != nil {
				hadTimeout = hadTimeout || isTimeout(err)
				break
			}
			if ref, ok := accepted[a.LineNo]; ok {
				got[a.LineNo] = ref
				break
			}
			last = ex
		}
	}
	r.logger.Debug("llm refinement round",
		zap.Int("pending", len(pending)),
		zap.Int("accepted", len(got)),
		zap.Int("retried", len(rejected)))

	if len(got) == 0 && responded {
		path := r.dumpDebug(last)
		return got, hadTimeout, fmt.Errorf("%w: results_failed_validation (debug_dump=%s)", ErrInvalidResponse, path)
	}
	return got, hadTimeout, nil
}

// call performs one request and validates the reply. A transport error is
// returned as is; validation failures are not errors.
func (r *Refiner) call(ctx context.Context, lines []*meter.LineAnalysis, p Params) (map[int]*validator.Refinement, exchange, error) {
	temperature := r.cfg.Temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	req, err := buildRequest(r.cfg.Model, r.cfg.PromptVersion, temperature, p.DominantMeter, lines)
	if err != nil {
		return nil, exchange{}, err
	}

	timeout := r.cfg.Timeout
	if p.Timeout > 0 {
		timeout = p.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Complete(callCtx, req)
	if err != nil {
		r.setLastError(err.Error())
		r.logger.Warn("llm request failed",
			zap.Int("lines", len(lines)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("timeout", isTimeout(err)),
			zap.Error(err))
		return nil, exchange{}, err
	}
	r.logger.Debug("llm response",
		zap.Int("lines", len(lines)),
		zap.Int("bytes", len(resp.Raw)),
		zap.Duration("elapsed", time.Since(start)))

	ex := exchange{request: req, raw: resp.Raw}
	baselines := make([]validator.Baseline, len(lines))
	for i, a := range lines {
		baselines[i] = validator.FromAnalysis(a)
	}
	results, err := validator.ParseBatch(resp.Content, baselines)
	if err != nil {
		ex.reason = "unparseable_response: " + err.Error()
		r.setLastError(ex.reason)
		return nil, ex, nil
	}
	for _, res := range results {
		if !res.Valid() {
			r.logger.Debug("llm line rejected",
				zap.Int("line", res.LineNo),
				zap.String("reason", res.Reason))
		}
	}
	accepted := validator.Accepted(results)
	if len(accepted) == 0 {
		ex.reason = "results_failed_validation"
		r.setLastError(ex.reason)
	}
	return accepted, ex, nil
}

func (r *Refiner) setLastError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = strings.TrimSpace(msg)
}

func (r *Refiner) loadPersisted(ctx context.Context, key string) (*validator.Refinement, bool) {
	if r.store == nil {
		return nil, false
	}
	payload, err := r.store.GetCached(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("llm cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var ref validator.Refinement
	if err := json.Unmarshal(payload, &ref); err != nil || !meter.ValidMeterName(ref.MeterName) {
		r.logger.Warn("llm cache entry unreadable", zap.String("key", key))
		return nil, false
	}
	return &ref, true
}

func (r *Refiner) persist(ctx context.Context, key, line string, ref *validator.Refinement) {
	if r.store == nil {
		return
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return
	}
	err = r.store.PutCached(ctx, store.CacheEntry{
		Key:           key,
		Model:         r.cfg.Model,
		PromptVersion: r.cfg.PromptVersion,
		LineText:      line,
		Payload:       payload,
	})
	if err != nil {
		r.logger.Warn("llm cache write failed", zap.Error(err))
	}
}
