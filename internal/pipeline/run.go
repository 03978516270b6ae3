package pipeline

import (
	"context"
	"log"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/cliplens/cliplens/internal/types"
)

// Default limits, overridable through Options.
const (
	DefaultMaxMediaBytes      = 20 * 1024 * 1024
	DefaultMaxTranscriptChars = 8000
)

// platformURLPattern matches the short-video URLs the scraper understands.
var platformURLPattern = regexp.MustCompile(`^https?://(www\.|m\.)?(tiktok\.com|vm\.tiktok\.com)/`)

// ValidSourceURL reports whether url looks like a supported platform URL.
// The orchestrator checks this before any network call is made.
func ValidSourceURL(url string) bool {
	return platformURLPattern.MatchString(url)
}

// MetadataFetcher resolves a platform URL to normalized video metadata.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (*types.VideoMetadata, error)
}

// SizeProber reports the byte size of the media behind a URL. A missing
// content-length is reported as 0, not an error.
type SizeProber interface {
	ProbeSize(ctx context.Context, mediaURL string) (int64, error)
}

// Transcriber produces a plain-text transcript for a downloadable media URL.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// AnalyzeRequest carries the transcript plus the metadata context the
// analyzer folds into its prompt.
type AnalyzeRequest struct {
	Transcript string
	Video      *types.VideoMetadata
}

// StreamAnalyzer runs structured analysis, invoking emit with each partial
// snapshot as the stream progresses. It returns the final analysis together
// with the raw JSON it was decoded from; strict validation of that JSON is
// the orchestrator's job.
type StreamAnalyzer interface {
	AnalyzeStream(ctx context.Context, req AnalyzeRequest, emit func(types.Analysis)) (types.Analysis, []byte, error)
}

// Archiver persists fetched videos and their final analysis. Persistence is
// best-effort: failures are logged, never fatal to the run.
type Archiver interface {
	SaveVideo(ctx context.Context, meta *types.VideoMetadata) (uuid.UUID, error)
	SaveAnalysis(ctx context.Context, videoID uuid.UUID, analysisJSON []byte) error
}

// Snapshot is the read-only view of a run that observers consume. Pointer
// fields are treated as immutable once published.
type Snapshot struct {
	Generation  uint64               `json:"generation"`
	SourceURL   string               `json:"source_url,omitempty"`
	Stage       Stage                `json:"stage"`
	VideoID     string               `json:"video_id,omitempty"`
	Video       *types.VideoMetadata `json:"video,omitempty"`
	Transcript  string               `json:"transcript,omitempty"`
	Analysis    *types.Analysis      `json:"analysis,omitempty"`
	Warning     string               `json:"warning,omitempty"`
	Error       string               `json:"error,omitempty"`
	FailedStage Stage                `json:"failed_stage,omitempty"`
}

// Options configures an Orchestrator. Fetcher, Prober, Transcriber and
// Analyzer are required; everything else has defaults.
type Options struct {
	Fetcher     MetadataFetcher
	Prober      SizeProber
	Transcriber Transcriber
	Analyzer    StreamAnalyzer

	// ValidateFinal runs strict schema validation on the final analysis
	// JSON. Nil disables validation.
	ValidateFinal func(raw []byte) error

	// Archiver is optional; nil runs the pipeline without persistence.
	Archiver Archiver

	MaxMediaBytes      int64
	MaxTranscriptChars int

	Logger *log.Logger
}

// Orchestrator owns exactly one run at a time. Starting a new run or
// resetting bumps the generation counter and cancels the previous run's
// context; every state mutation is guarded by a generation check so a slow,
// abandoned request can never overwrite newer state.
type Orchestrator struct {
	opts Options

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	snap    Snapshot
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// New creates an orchestrator in the idle state.
func New(opts Options) *Orchestrator {
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if opts.MaxTranscriptChars <= 0 {
		opts.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Orchestrator{
		opts: opts,
		snap: Snapshot{Stage: StageIdle},
		subs: make(map[uint64]chan Snapshot),
	}
}

// Snapshot returns the current state of the active run.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Subscribe registers an observer. The returned channel carries snapshots
// with latest-wins coalescing: a slow reader sees the newest state, never a
// backlog of stale ones. The cancel func must be called to release the
// subscription.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- o.snap
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// Start begins a new run for url, implicitly abandoning any run in flight.
// An invalid URL returns a ValidationError and leaves the current state
// untouched: no network call is made.
func (o *Orchestrator) Start(url string) (Snapshot, error) {
	if url == "" {
		return o.Snapshot(), &ValidationError{Field: "url", Message: "URL is required"}
	}
	if !ValidSourceURL(url) {
		return o.Snapshot(), &ValidationError{Field: "url", Message: "not a recognized platform video URL"}
	}

	o.mu.Lock()
	o.gen++
	gen := o.gen
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.snap = Snapshot{Generation: gen, SourceURL: url, Stage: StageFetching}
	o.notifyLocked()
	snap := o.snap
	o.mu.Unlock()

	go o.execute(ctx, gen, url)
	return snap, nil
}

// Reset abandons the active run and returns to idle. In-flight requests are
// cancelled and any late responses they produce are discarded.
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.snap = Snapshot{Generation: o.gen, Stage: StageIdle}
	o.notifyLocked()
	return o.snap
}

// execute drives one run through the pipeline. Every mutation goes through a
// generation-guarded helper; once gen falls behind, the run is abandoned and
// all further effects are dropped.
func (o *Orchestrator) execute(ctx context.Context, gen uint64, url string) {
	meta, err := o.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		o.fail(gen, wrapUpstream("metadata fetch", err))
		return
	}
	meta.Normalize()
	if !meta.HasPlayableMedia() {
		o.fail(gen, &NotFoundError{Resource: "playable media URL for " + url})
		return
	}

	var videoID uuid.UUID
	if o.opts.Archiver != nil {
		videoID, err = o.opts.Archiver.SaveVideo(ctx, meta)
		if err != nil {
			o.opts.Logger.Printf("[pipeline] archiving video failed: %v", err)
			videoID = uuid.Nil
		}
	}

	// Size gate: probe before the stage advances so an oversized video
	// fails out of fetching-video and the transcriber is never invoked.
	size, err := o.opts.Prober.ProbeSize(ctx, meta.VideoURL)
	if err != nil {
		o.fail(gen, wrapUpstream("size probe", err))
		return
	}
	if size > o.opts.MaxMediaBytes {
		o.fail(gen, &PayloadTooLargeError{Size: size, Limit: o.opts.MaxMediaBytes})
		return
	}

	if !o.setVideo(gen, meta, videoID) {
		return
	}

	transcript, err := o.opts.Transcriber.Transcribe(ctx, meta.VideoURL)
	if err != nil {
		o.fail(gen, wrapUpstream("transcription", err))
		return
	}
	if !o.setTranscript(gen, transcript) {
		return
	}

	req := AnalyzeRequest{
		Transcript: TruncateTranscript(transcript, o.opts.MaxTranscriptChars),
		Video:      meta,
	}
	final, raw, err := o.opts.Analyzer.AnalyzeStream(ctx, req, func(p types.Analysis) {
		o.applyPartial(gen, p)
	})
	if err != nil {
		o.fail(gen, wrapUpstream("analysis", err))
		return
	}
	if o.opts.ValidateFinal != nil {
		if verr := o.opts.ValidateFinal(raw); verr != nil {
			// The last good partial stays visible; the run only fails
			// for completion purposes.
			o.fail(gen, &SchemaValidationError{Cause: verr})
			return
		}
	}

	final.Normalize()
	o.complete(gen, final)

	if o.opts.Archiver != nil && videoID != uuid.Nil {
		if err := o.opts.Archiver.SaveAnalysis(ctx, videoID, raw); err != nil {
			o.opts.Logger.Printf("[pipeline] archiving analysis failed: %v", err)
		}
	}
}

// setVideo records fetched metadata and advances fetching-video →
// transcribing. Returns false when the run has been abandoned.
func (o *Orchestrator) setVideo(gen uint64, meta *types.VideoMetadata, videoID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.snap.Stage.CanTransition(StageTranscribing) {
		return false
	}
	o.snap.Video = meta
	if videoID != uuid.Nil {
		o.snap.VideoID = videoID.String()
	}
	o.snap.Stage = StageTranscribing
	o.notifyLocked()
	return true
}

// setTranscript records the transcript and advances transcribing →
// analyzing. An empty transcript is not fatal but surfaces a warning.
func (o *Orchestrator) setTranscript(gen uint64, transcript string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.snap.Stage.CanTransition(StageAnalyzing) {
		return false
	}
	o.snap.Transcript = transcript
	if transcript == "" {
		o.snap.Warning = "transcript is empty; analysis will rely on caption and metadata only"
	}
	o.snap.Stage = StageAnalyzing
	o.notifyLocked()
	return true
}

// applyPartial replaces the analysis snapshot wholesale with the newest
// partial (latest wins) and moves analyzing → streaming on the first one.
func (o *Orchestrator) applyPartial(gen uint64, partial types.Analysis) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	if o.snap.Stage == StageAnalyzing {
		o.snap.Stage = StageStreaming
	}
	if o.snap.Stage != StageStreaming {
		return
	}
	partial.Normalize()
	o.snap.Analysis = &partial
	o.notifyLocked()
}

// complete records the final analysis and finishes the run.
func (o *Orchestrator) complete(gen uint64, final types.Analysis) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	// A stream that ended before its first emission still counts as
	// established: pass through streaming so the machine stays legal.
	if o.snap.Stage == StageAnalyzing {
		o.snap.Stage = StageStreaming
	}
	if !o.snap.Stage.CanTransition(StageComplete) {
		return
	}
	o.snap.Analysis = &final
	o.snap.Stage = StageComplete
	o.notifyLocked()
}

// fail moves the run to the error state, tagging the stage that failed.
// Previously gathered data (metadata, transcript, last good partial) stays
// visible.
func (o *Orchestrator) fail(gen uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.snap.Stage.CanTransition(StageError) {
		return
	}
	o.snap.FailedStage = o.snap.Stage
	o.snap.Stage = StageError
	o.snap.Error = err.Error()
	o.opts.Logger.Printf("[pipeline] run %d failed at %s: %v", gen, o.snap.FailedStage, err)
	o.notifyLocked()
}

// notifyLocked pushes the current snapshot to all subscribers, dropping a
// stale undelivered snapshot in favor of the new one. Callers hold o.mu.
func (o *Orchestrator) notifyLocked() {
	for _, ch := range o.subs {
		select {
		case ch <- o.snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- o.snap:
			default:
			}
		}
	}
}

// wrapUpstream normalizes stage failures: typed pipeline errors pass through
// untouched, everything else becomes an UpstreamServiceError tagged with the
// collaborator name.
func wrapUpstream(service string, err error) error {
	switch err.(type) {
	case *ValidationError, *NotFoundError, *UpstreamServiceError, *PayloadTooLargeError, *SchemaValidationError:
		return err
	}
	return &UpstreamServiceError{Service: service, Cause: err}
}

// TruncateTranscript keeps the first maxChars characters of a transcript,
// dropping the remainder. Budgets are counted in runes, not bytes.
func TruncateTranscript(transcript string, maxChars int) string {
	if maxChars <= 0 {
		return transcript
	}
	runes := []rune(transcript)
	if len(runes) <= maxChars {
		return transcript
	}
	return string(runes[:maxChars])
}
