package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
	"github.com/platinummonkey/trellis/pkg/settings"
)

const (
	tracerName = "github.com/platinummonkey/trellis/pkg/updater"
	userAgent  = "trellis-updater"

	// lastCheckKey holds the start time of the last unthrottled run
	lastCheckKey = "updates:last_check"
	stateScope   = "trellis"

	defaultMaxArtifactBytes = 256 << 20
)

// ErrCheckInProgress is returned when a run is requested while one is active
var ErrCheckInProgress = errors.New("update check already in progress")

// State is a step of an update run
type State int

const (
	StateIdle State = iota
	StateCheckingThrottle
	StateFetchingReleaseFeed
	StateComparingVersion
	StateDownloading
	StateInstalling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingThrottle:
		return "checking_throttle"
	case StateFetchingReleaseFeed:
		return "fetching_release_feed"
	case StateComparingVersion:
		return "comparing_version"
	case StateDownloading:
		return "downloading"
	case StateInstalling:
		return "installing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Catalog lists the extensions known to the host
type Catalog interface {
	List(kind extension.Kind) []extension.Entry
}

// Installer places a downloaded artifact where discovery picks it up
type Installer interface {
	Install(ctx context.Context, meta extension.Metadata, artifactPath string) error
}

// Recorder observes update runs
type Recorder interface {
	RecordUpdateOutcome(kind, outcome string)
	RecordUpdateCheck(duration time.Duration)
}

// Outcome is the result of checking one extension. State is the last state
// entered; Updated is set once the artifact was installed.
type Outcome struct {
	Key     extension.Key `json:"key"`
	State   State         `json:"state"`
	Current string        `json:"current"`
	Tag     string        `json:"tag,omitempty"`
	Asset   string        `json:"asset,omitempty"`
	Updated bool          `json:"updated"`
	Err     error         `json:"-"`
}

// Label is the metrics label of the outcome
func (o Outcome) Label() string {
	switch {
	case o.Err != nil:
		return "failed"
	case o.Updated:
		return "updated"
	default:
		return "current"
	}
}

// Report summarizes one run
type Report struct {
	Started   time.Time `json:"started"`
	Throttled bool      `json:"throttled"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Updated returns the keys of the extensions that were installed
func (r Report) Updated() []extension.Key {
	var keys []extension.Key
	for _, o := range r.Outcomes {
		if o.Updated {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// Config holds the checker's collaborators and tuning
type Config struct {
	Catalog   Catalog
	Installer Installer
	Store     *settings.Store
	Messenger extension.Messenger
	Recorder  Recorder

	// MinInterval is the throttle between unforced runs
	MinInterval time.Duration
	// ABI is matched against asset names, e.g. "linux-amd64"
	ABI string
	// AssetSuffix overrides the per-kind artifact suffix
	AssetSuffix string
	Concurrency int
	HTTPClient  *http.Client
	// TempDir receives downloads before installation; empty means os.TempDir
	TempDir string
	// MaxArtifactBytes bounds a single download
	MaxArtifactBytes int64

	Tracer trace.Tracer
	Now    func() time.Time
	Log    *logrus.Logger
}

// Checker runs update checks. Only one run is active at a time.
type Checker struct {
	cfg     Config
	client  *http.Client
	tracer  trace.Tracer
	now     func() time.Time
	log     *logrus.Logger
	state   *reactive.Value[State]
	running atomic.Bool
}

// New creates a checker
func New(cfg Config) (*Checker, error) {
	if cfg.Catalog == nil || cfg.Installer == nil || cfg.Store == nil {
		return nil, errors.New("update checker requires a catalog, an installer and a settings store")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxArtifactBytes <= 0 {
		cfg.MaxArtifactBytes = defaultMaxArtifactBytes
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}

	c := &Checker{
		cfg:    cfg,
		client: cfg.HTTPClient,
		tracer: cfg.Tracer,
		now:    cfg.Now,
		log:    cfg.Log,
		state:  reactive.NewValue(StateIdle),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 60 * time.Second}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// State returns the observable run state
func (c *Checker) State() *reactive.Value[State] {
	return c.state
}

// LastCheck returns the start time of the last unthrottled run
func (c *Checker) LastCheck() (time.Time, bool) {
	return c.cfg.Store.Named(stateScope).GetTime(lastCheckKey)
}

// Check runs one update pass. Unless force is set, the run is skipped when the
// previous one started less than MinInterval ago.
func (c *Checker) Check(ctx context.Context, force bool) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrCheckInProgress
	}
	defer func() {
		c.state.Set(StateIdle)
		c.running.Store(false)
	}()

	ctx, span := c.tracer.Start(ctx, "updates.check", trace.WithAttributes(attribute.Bool("updates.forced", force)))
	defer span.End()

	report := Report{Started: c.now()}

	c.state.Set(StateCheckingThrottle)
	prefs := c.cfg.Store.Named(stateScope)
	if last, ok := prefs.GetTime(lastCheckKey); ok && !force && report.Started.Sub(last) < c.cfg.MinInterval {
		c.log.WithField("last_check", last).Debug("Update check throttled")
		report.Throttled = true
		return report, nil
	}

	var candidates []extension.Entry
	for _, kind := range extension.Kinds() {
		for _, e := range c.cfg.Catalog.List(kind) {
			if e.Err == nil && e.Metadata.UpdateEndpoint != "" {
				candidates = append(candidates, e)
			}
		}
	}

	// an empty catalog is usually discovery that has not finished; the next
	// run must not be throttled by it
	if len(candidates) == 0 {
		c.log.Debug("No updatable extensions listed")
		return report, nil
	}
	if err := prefs.PutTime(lastCheckKey, report.Started); err != nil {
		c.log.WithError(err).Warn("Failed to persist update check time")
	}

	c.state.Set(StateFetchingReleaseFeed)
	report.Outcomes = make([]Outcome, len(candidates))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.Concurrency)
	var mu sync.Mutex

	for i, entry := range candidates {
		i, entry := i, entry
		eg.Go(func() error {
			outcome := c.checkOne(egCtx, entry.Metadata)

			mu.Lock()
			report.Outcomes[i] = outcome
			mu.Unlock()

			// a failed extension never stops the others
			return nil
		})
	}
	_ = eg.Wait()

	elapsed := c.now().Sub(report.Started)
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordUpdateCheck(elapsed)
	}
	span.SetAttributes(attribute.Int("updates.checked", len(candidates)), attribute.Int("updates.installed", len(report.Updated())))
	c.log.WithFields(logrus.Fields{
		"checked":   len(candidates),
		"installed": len(report.Updated()),
		"duration":  elapsed,
	}).Info("Update check complete")

	return report, ctx.Err()
}

func (c *Checker) checkOne(ctx context.Context, meta extension.Metadata) Outcome {
	key := meta.Key()
	outcome := Outcome{Key: key, Current: meta.Version}

	ctx, span := c.tracer.Start(ctx, "extension.update", trace.WithAttributes(
		attribute.String("extension.kind", string(key.Kind)),
		attribute.String("extension.id", key.ID),
	))
	defer span.End()

	err := c.update(ctx, meta, &outcome)
	if err != nil {
		outcome.Err = &extension.UpdateError{Key: key, Stage: outcome.State.String(), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.WithField("extension", key.String()).WithError(err).Warn("Extension update failed")
		if c.cfg.Messenger != nil {
			c.cfg.Messenger.Report(key, outcome.Err)
		}
	}
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordUpdateOutcome(string(key.Kind), outcome.Label())
	}
	return outcome
}

func (c *Checker) update(ctx context.Context, meta extension.Metadata, outcome *Outcome) error {
	outcome.State = StateFetchingReleaseFeed
	release, err := c.fetchRelease(ctx, meta.UpdateEndpoint)
	if err != nil {
		return err
	}
	outcome.Tag = release.Tag

	outcome.State = StateComparingVersion
	if !IsNewer(meta.Version, release.Tag) {
		c.log.WithField("extension", meta.Key().String()).Debugf("Extension is current at %s", meta.Version)
		return nil
	}

	outcome.State = StateDownloading
	suffix := c.cfg.AssetSuffix
	if suffix == "" {
		suffix = meta.Kind.FileSuffix()
	}
	asset, ok := SelectAsset(release.Assets, c.cfg.ABI, suffix)
	if !ok {
		return fmt.Errorf("release %s has no asset for %s with suffix %s", release.Tag, c.cfg.ABI, suffix)
	}
	outcome.Asset = asset.Name

	path, err := c.download(ctx, asset, suffix)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	outcome.State = StateInstalling
	installed := meta
	installed.Version = release.Tag
	if err := c.cfg.Installer.Install(ctx, installed, path); err != nil {
		return fmt.Errorf("installing %s: %w", asset.Name, err)
	}

	outcome.Updated = true
	c.log.WithFields(logrus.Fields{
		"extension": meta.Key().String(),
		"from":      meta.Version,
		"to":        release.Tag,
	}).Info("Extension updated")
	return nil
}

// download stores the asset in a temporary file and returns its path
func (c *Checker) download(ctx context.Context, asset *Asset, suffix string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of %s returned status %d", asset.Name, resp.StatusCode)
	}

	f, err := os.CreateTemp(c.cfg.TempDir, "trellis-update-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}

	limit := c.cfg.MaxArtifactBytes
	if resp.ContentLength > limit {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download of %s is %d bytes, limit is %d", asset.Name, resp.ContentLength, limit)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if err == nil && n > limit {
		err = fmt.Errorf("download of %s exceeds %d bytes", asset.Name, limit)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing download: %w", err)
	}
	return f.Name(), nil
}
