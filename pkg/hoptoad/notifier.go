// notifier.go provides registration and the capture path.

package hoptoad

import (
	"context"
	"fmt"
	"log"
	"maps"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/buffer"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/delivery"
)

// DefaultEnvironmentName is used when WithEnvironmentName is not given.
const DefaultEnvironmentName = "default"

// Config is the immutable registration state of a Notifier.
type Config struct {
	// StorageRoot is the directory holding buffered notices.
	StorageRoot string

	// APIKey identifies the project to the collector.
	APIKey string

	// EnvironmentName is written to every notice, e.g. "production".
	EnvironmentName string

	// Endpoint is the collector URL.
	Endpoint string

	// Metadata is the application and host identification resolved at
	// registration.
	Metadata Metadata

	// StorageEnabled is false when the storage root could not be
	// initialized. Capture and flush are then no-ops.
	StorageEnabled bool
}

// Option configures a Notifier.
type Option func(*notifierConfig)

type notifierConfig struct {
	environmentName string
	endpoint        string
	logger          *log.Logger
	metadata        MetadataSource
	httpClient      *http.Client
	uploadTimeout   *time.Duration
	mirror          Sink
	scrubber        *ScrubberConfig
	crashOutput     bool
	initialFlush    bool
}

// WithEnvironmentName sets the deployment environment written to notices.
// Default: "default".
func WithEnvironmentName(name string) Option {
	return func(c *notifierConfig) {
		if name != "" {
			c.environmentName = name
		}
	}
}

// WithEndpoint sets the collector URL. Default: delivery.DefaultEndpoint.
func WithEndpoint(url string) Option {
	return func(c *notifierConfig) {
		c.endpoint = url
	}
}

// WithLogger sets a logger for capture and delivery messages.
// If not set, messages are silently dropped.
func WithLogger(logger *log.Logger) Option {
	return func(c *notifierConfig) {
		c.logger = logger
	}
}

// WithMetadata sets the source of application and host identification.
// Default: DefaultMetadata().
func WithMetadata(src MetadataSource) Option {
	return func(c *notifierConfig) {
		c.metadata = src
	}
}

// WithHTTPClient sets the client used for uploads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *notifierConfig) {
		c.httpClient = client
	}
}

// WithUploadTimeout bounds each upload. Default: delivery.DefaultTimeout.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *notifierConfig) {
		c.uploadTimeout = &d
	}
}

// WithMirror sends every captured report to sink as well. Mirror failures
// are logged and never affect buffering.
func WithMirror(sink Sink) Option {
	return func(c *notifierConfig) {
		c.mirror = sink
	}
}

// WithScrubbing scrubs reports with cfg before they are persisted.
func WithScrubbing(cfg ScrubberConfig) Option {
	return func(c *notifierConfig) {
		c.scrubber = &cfg
	}
}

// WithCrashOutput makes Register capture fatal runtime crashes, including
// panics on goroutines without Guard. The crash is written to a file under
// the storage root and turned into a report by the next Register.
func WithCrashOutput() Option {
	return func(c *notifierConfig) {
		c.crashOutput = true
	}
}

// WithoutInitialFlush skips the delivery attempt Register makes for
// notices left by previous runs.
func WithoutInitialFlush() Option {
	return func(c *notifierConfig) {
		c.initialFlush = false
	}
}

// Notifier captures failures into the storage root and delivers them.
// Notifier is safe for concurrent use.
type Notifier struct {
	cfg             Config
	collector       Collector
	buf             *buffer.Buffer
	durable         *durableSink
	logger          *log.Logger
	startTime       time.Time
	crash           *crashOutput
	wantCrash       bool
	flushOnRegister bool
	closed          atomic.Bool
}

// defaultNotifier is the notifier used by the interceptor and the
// package-level functions.
var defaultNotifier atomic.Pointer[Notifier]

// New creates a Notifier without registering it process-wide.
// It returns ErrMissingAPIKey, before touching the file system, when apiKey
// is empty. A storage root that cannot be created does not fail New: the
// Notifier is returned with storage disabled.
func New(storageRoot, apiKey string, opts ...Option) (*Notifier, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	nc := &notifierConfig{
		environmentName: DefaultEnvironmentName,
		endpoint:        delivery.DefaultEndpoint,
		initialFlush:    true,
	}
	for _, opt := range opts {
		opt(nc)
	}

	n := &Notifier{
		cfg: Config{
			StorageRoot:     storageRoot,
			APIKey:          apiKey,
			EnvironmentName: nc.environmentName,
			Endpoint:        nc.endpoint,
			Metadata:        ResolveMetadata(nc.metadata),
		},
		logger:          nc.logger,
		startTime:       time.Now(),
		wantCrash:       nc.crashOutput,
		flushOnRegister: nc.initialFlush,
	}

	buf, err := buffer.Open(storageRoot, buffer.WithLogger(nc.logger))
	if err != nil {
		n.logf("hoptoad: storage disabled: %v", err)
		n.collector = NewCollector()
		return n, nil
	}
	n.buf = buf
	n.cfg.StorageEnabled = true

	engineOpts := []delivery.Option{delivery.WithLogger(nc.logger)}
	if nc.httpClient != nil {
		engineOpts = append(engineOpts, delivery.WithHTTPClient(nc.httpClient))
	}
	if nc.uploadTimeout != nil {
		engineOpts = append(engineOpts, delivery.WithTimeout(*nc.uploadTimeout))
	}

	n.durable = &durableSink{
		buf:    buf,
		engine: delivery.New(nc.endpoint, engineOpts...),
		identity: Identity{
			APIKey:          apiKey,
			EnvironmentName: nc.environmentName,
		},
		prefix: n.cfg.Metadata.AppVersion,
		logger: nc.logger,
	}
	var sink Sink = n.durable
	if nc.mirror != nil {
		sink = &teeSink{primary: sink, mirror: nc.mirror, logger: nc.logger}
	}

	collectorOpts := []CollectorOption{WithSink(sink)}
	if nc.scrubber != nil {
		collectorOpts = append(collectorOpts, WithScrubber(*nc.scrubber))
	}
	n.collector = NewCollector(collectorOpts...)

	return n, nil
}

// Register creates a Notifier, makes it the process-wide default and
// installs the fallback interceptor unless one is already installed.
// Reports buffered by previous runs are then flushed synchronously.
//
// A second Register replaces the default notifier; the interceptor is not
// chained twice.
func Register(storageRoot, apiKey string, opts ...Option) (*Notifier, error) {
	n, err := New(storageRoot, apiKey, opts...)
	if err != nil {
		return nil, err
	}

	defaultNotifier.Store(n)
	installInterceptor()

	ctx := context.Background()
	if n.wantCrash && n.cfg.StorageEnabled {
		n.ingestCrashes(ctx)
		if err := n.enableCrashOutput(); err != nil {
			n.logf("hoptoad: crash output not enabled: %v", err)
		}
	}

	if n.flushOnRegister && n.cfg.StorageEnabled {
		if err := n.Flush(ctx); err != nil {
			n.logf("hoptoad: initial flush failed: %v", err)
		}
	}
	return n, nil
}

// MustRegister is like Register but panics if registration fails.
func MustRegister(storageRoot, apiKey string, opts ...Option) *Notifier {
	n, err := Register(storageRoot, apiKey, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

// Default returns the registered notifier, or nil.
func Default() *Notifier {
	return defaultNotifier.Load()
}

// Notify reports err through the default notifier. It is a no-op when no
// notifier is registered.
func Notify(ctx context.Context, err error) {
	if n := Default(); n != nil {
		n.notify(ctx, err, captureStack(1))
	}
}

// Flush delivers buffered notices through the default notifier.
func Flush(ctx context.Context) error {
	n := Default()
	if n == nil {
		return ErrNotRegistered
	}
	return n.Flush(ctx)
}

// Config returns the registration state.
func (n *Notifier) Config() Config {
	return n.cfg
}

// Enabled reports whether the storage root is usable.
func (n *Notifier) Enabled() bool {
	return n.cfg.StorageEnabled && !n.closed.Load()
}

// Notify captures err as a report, persists it and attempts delivery.
// It is a no-op when err is nil or storage is disabled. Failures are
// logged, never returned.
func (n *Notifier) Notify(ctx context.Context, err error) {
	n.notify(ctx, err, captureStack(1))
}

func (n *Notifier) notify(ctx context.Context, err error, pcs []uintptr) {
	if err == nil || !n.Enabled() {
		return
	}
	if n.record(ctx, func(meta Metadata, env map[string]string) Report {
		return buildReport(err, pcs, meta, env)
	}) {
		n.flushAfterCapture(ctx)
	}
}

// NotifyPanic captures a panic value recovered by the caller. Call it from
// the deferred function that recovered so the panicking frames are still
// on the stack. It does not re-panic.
func (n *Notifier) NotifyPanic(ctx context.Context, value any) {
	n.notifyPanic(ctx, value, captureStack(1), goroutineID())
}

// notifyPanic captures a recovered panic value raised on goroutine gid.
// Returns whether the report was persisted.
func (n *Notifier) notifyPanic(ctx context.Context, value any, pcs []uintptr, gid int64) bool {
	if !n.Enabled() {
		return false
	}
	ok := n.record(ctx, func(meta Metadata, env map[string]string) Report {
		if gid > 0 {
			env[TagGoroutineID] = strconv.FormatInt(gid, 10)
		}
		return buildPanicReport(value, pcs, meta, env)
	})
	if ok {
		n.flushAfterCapture(ctx)
	}
	return ok
}

// record builds and persists one report. Panics raised while doing so are
// recovered and logged. Returns whether the report was persisted.
func (n *Notifier) record(ctx context.Context, build func(Metadata, map[string]string) Report) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logf("hoptoad: panic while capturing report: %v", r)
			ok = false
		}
	}()

	report := build(n.cfg.Metadata, n.environment())
	if req, found := RequestFromContext(ctx); found {
		report.Request = req
	}
	if id, found := ContextIDFromContext(ctx); found {
		report.ContextID = &id
	}
	if tags, found := TagsFromContext(ctx); found {
		if report.Environment == nil {
			report.Environment = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			if !protectedTags[k] {
				report.Environment[k] = v
			}
		}
	}

	if err := n.collector.Record(ctx, report); err != nil {
		n.logf("hoptoad: failed to persist report: %v", err)
		return false
	}
	return true
}

// flushAfterCapture delivers buffered notices. Mirrors are not flushed here
// so a stalled mirror cannot hold up the capture path.
func (n *Notifier) flushAfterCapture(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			n.logf("hoptoad: panic while flushing: %v", r)
		}
	}()
	if n.durable == nil {
		return
	}
	if err := n.durable.Flush(ctx); err != nil {
		n.logf("hoptoad: flush failed: %v", err)
	}
}

// environment returns the tags attached to every report.
func (n *Notifier) environment() map[string]string {
	env := n.cfg.Metadata.Tags()
	maps.Copy(env, CaptureSystemState(n.startTime).Tags())
	env["Environment Name"] = n.cfg.EnvironmentName
	return env
}

// Flush attempts to deliver every buffered notice once.
func (n *Notifier) Flush(ctx context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.cfg.StorageEnabled {
		return ErrStorageDisabled
	}
	return n.collector.Flush(ctx)
}

// Pending returns the number of buffered notices.
func (n *Notifier) Pending() (int, error) {
	if !n.cfg.StorageEnabled {
		return 0, ErrStorageDisabled
	}
	handles, err := n.buf.ListPending()
	if err != nil {
		return 0, err
	}
	return len(handles), nil
}

// Close stops capturing. Buffered notices stay on disk for the next run.
// If n is the default notifier it is unregistered; the interceptor stays
// installed and delegates straight to the previous handler.
func (n *Notifier) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	defaultNotifier.CompareAndSwap(n, nil)
	if c := n.crash; c != nil {
		if err := c.disable(); err != nil {
			n.logf("hoptoad: failed to disable crash output: %v", err)
		}
	}
	if err := n.collector.Close(); err != nil {
		return fmt.Errorf("hoptoad: close: %w", err)
	}
	return nil
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}
