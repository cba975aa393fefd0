package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/domain/types"
	"github.com/cryptad/update-releaser/pkg/infra/fcp"
	"github.com/cryptad/update-releaser/pkg/utils/parallel"
)

const defaultParallel = 2

// Workflow orchestrates the promotion pipeline for one edition. Every stage
// performs a load -> mutate -> save cycle against the state store and skips
// any network side effect whose result is already recorded, so re-running a
// stage after a partial failure is always safe.
type Workflow struct {
	ref      *model.ReleaseRef
	states   interfaces.StateStore
	source   interfaces.ReleaseSource
	store    interfaces.ContentStore
	putOpts  interfaces.PutOptions
	dryRun   bool
	parallel int
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPutOptions sets the insert options passed to the content store.
func WithPutOptions(opts interfaces.PutOptions) Option {
	return func(w *Workflow) { w.putOpts = opts }
}

// WithDryRun makes all stages log their plan and perform only local
// computation, without network side effects or state writes.
func WithDryRun(dryRun bool) Option {
	return func(w *Workflow) { w.dryRun = dryRun }
}

// WithParallel bounds concurrent inserts within a stage.
func WithParallel(n int) Option {
	return func(w *Workflow) { w.parallel = n }
}

// NewWorkflow creates the pipeline for a release. The content store may be
// nil only for dry runs.
func NewWorkflow(ref *model.ReleaseRef, states interfaces.StateStore, source interfaces.ReleaseSource, store interfaces.ContentStore, options ...Option) *Workflow {
	w := &Workflow{
		ref:      ref,
		states:   states,
		source:   source,
		store:    store,
		parallel: defaultParallel,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *Workflow) workdir() string {
	return w.states.Dir(w.ref.Edition)
}

// loadState loads the edition's state and pins it to this release. Reusing
// an edition directory for a different release is fatal before any stage
// side effect happens.
func (w *Workflow) loadState() (*model.PipelineState, error) {
	state, err := w.states.Load(w.ref.Edition)
	if err != nil {
		return nil, err
	}

	desired := &model.ReleaseIdentity{
		Owner:          w.ref.Owner,
		Repo:           w.ref.Repo,
		Tag:            w.ref.Tag,
		Edition:        w.ref.Edition,
		ReleasePageURL: w.ref.ReleasePageURL,
	}
	if state.Release != nil && *state.Release != *desired {
		return nil, goerr.New("existing state belongs to a different release",
			goerr.T(types.ErrTagConfig),
			goerr.V("edition", w.ref.Edition),
			goerr.V("recorded", *state.Release),
			goerr.V("requested", *desired),
		)
	}
	if state.Release == nil {
		state.Release = desired
		if !w.dryRun {
			if err := w.states.Save(w.ref.Edition, state); err != nil {
				return nil, err
			}
		}
	}
	return state, nil
}

// FetchAssets downloads the release's package assets into the edition
// workdir and records size and sha256 per asset. Cached downloads whose size
// matches the release metadata are reused.
func (w *Workflow) FetchAssets(ctx context.Context) (map[string]model.AssetRecord, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return nil, err
	}

	if w.dryRun {
		logger.Info("[dry-run] would fetch GitHub release assets",
			"owner", w.ref.Owner, "repo", w.ref.Repo, "tag", w.ref.Tag)
		return state.Assets, nil
	}

	if len(state.Assets) > 0 && w.cachedAssetsExist(state.Assets) {
		logger.Info("reusing previously downloaded assets", "workdir", w.workdir())
		return state.Assets, nil
	}

	release, err := w.fetchRelease(ctx, state)
	if err != nil {
		return nil, err
	}

	mapped, err := model.MapReleaseAssets(release.Assets)
	if err != nil {
		return nil, err
	}

	assetDir := filepath.Join(w.workdir(), "assets")
	records := map[string]model.AssetRecord{}
	for _, key := range model.SortedKeys(mapped) {
		asset := mapped[key].Asset
		dest := filepath.Join(assetDir, asset.Name)

		if info, err := os.Stat(dest); err == nil && info.Size() == asset.Size {
			logger.Info("using cached asset", "name", asset.Name)
		} else {
			logger.Info("downloading asset", "name", asset.Name, "size", asset.Size)
			if err := w.source.DownloadAsset(ctx, asset.BrowserDownloadURL, dest); err != nil {
				return nil, err
			}
		}

		info, err := os.Stat(dest)
		if err != nil {
			return nil, goerr.Wrap(err, "downloaded asset is missing", goerr.V("path", dest))
		}
		digest, err := sha256File(dest)
		if err != nil {
			return nil, err
		}
		records[key] = model.AssetRecord{
			AssetID:            asset.ID,
			AssetName:          asset.Name,
			BrowserDownloadURL: asset.BrowserDownloadURL,
			Path:               relToWorkdir(dest, w.workdir()),
			Size:               info.Size(),
			SHA256:             digest,
		}
	}

	state.Assets = records
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return nil, err
	}
	return records, nil
}

// InsertArtifacts inserts every downloaded asset as content-addressed data
// and records the resulting address. Artifacts that already have a recorded
// address with a matching size are skipped; independent inserts run in
// parallel with a bounded worker count.
func (w *Workflow) InsertArtifacts(ctx context.Context) (map[string]model.PackageRecord, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return nil, err
	}

	if w.dryRun {
		logger.Info("[dry-run] would insert package artifacts as content-addressed blobs")
		return state.Packages, nil
	}
	if w.store == nil {
		return nil, goerr.New("content store is required for insert-artifacts", goerr.T(types.ErrTagConfig))
	}

	assets := state.Assets
	if len(assets) == 0 || !w.cachedAssetsExist(assets) {
		if assets, err = w.FetchAssets(ctx); err != nil {
			return nil, err
		}
		if state, err = w.loadState(); err != nil {
			return nil, err
		}
	}

	packages := state.Packages
	if packages == nil {
		packages = map[string]model.PackageRecord{}
	}

	var pending []string
	for _, key := range model.SortedKeys(assets) {
		record, exists := packages[key]
		if exists && record.CHK != "" && record.Size == assets[key].Size {
			logger.Info("reusing existing content address", "package", key)
			continue
		}
		pending = append(pending, key)
	}

	var mu sync.Mutex
	insertErr := parallel.ForEach(ctx, w.parallel, pending, func(ctx context.Context, key string) error {
		asset := assets[key]
		path := absFromWorkdir(asset.Path, w.workdir())
		logger.Info("inserting artifact", "package", key, "file", asset.AssetName)

		chk, err := w.store.InsertFile(ctx, "CHK@", path, w.putOpts)
		if err != nil {
			return goerr.Wrap(err, "failed to insert artifact", goerr.V("package", key))
		}

		mu.Lock()
		packages[key] = model.PackageRecord{
			CHK:       chk,
			Size:      asset.Size,
			AssetName: asset.AssetName,
		}
		mu.Unlock()
		return nil
	})

	// Keep every known-good result even when some inserts failed, so the
	// next run only retries the remainder.
	state.Packages = packages
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return nil, err
	}
	if insertErr != nil {
		return nil, insertErr
	}
	return packages, nil
}

// UploadChangelogs derives (or takes from override files) the short and full
// changelog texts, inserts them, and records their addresses. State is saved
// after each upload so a failure between the two loses nothing.
func (w *Workflow) UploadChangelogs(ctx context.Context, shortOverride, fullOverride string) (*model.ChangelogRecord, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return nil, err
	}

	if w.dryRun {
		logger.Info("[dry-run] would upload short/full changelog blobs")
		return state.Changelogs, nil
	}
	if w.store == nil {
		return nil, goerr.New("content store is required for upload-changelogs", goerr.T(types.ErrTagConfig))
	}

	body, err := w.ensureReleaseBody(ctx, state)
	if err != nil {
		return nil, err
	}
	shortPath, fullPath, err := prepareChangelogFiles(w.workdir(), shortOverride, fullOverride, body)
	if err != nil {
		return nil, err
	}

	record := state.Changelogs
	if record == nil {
		record = &model.ChangelogRecord{}
	}

	shortSHA, err := sha256File(shortPath)
	if err != nil {
		return nil, err
	}
	fullSHA, err := sha256File(fullPath)
	if err != nil {
		return nil, err
	}

	if record.ShortSHA256 == shortSHA && record.ChangelogCHK != "" {
		logger.Info("reusing existing short changelog address")
	} else {
		logger.Info("uploading short changelog", "path", shortPath)
		chk, err := w.store.InsertFile(ctx, "CHK@", shortPath, w.putOpts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to upload short changelog")
		}
		record.ChangelogCHK = chk
		record.ShortPath = relToWorkdir(shortPath, w.workdir())
		record.ShortSHA256 = shortSHA
		state.Changelogs = record
		if err := w.states.Save(w.ref.Edition, state); err != nil {
			return nil, err
		}
	}

	if record.FullSHA256 == fullSHA && record.FullChangelogCHK != "" {
		logger.Info("reusing existing full changelog address")
	} else {
		logger.Info("uploading full changelog", "path", fullPath)
		chk, err := w.store.InsertFile(ctx, "CHK@", fullPath, w.putOpts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to upload full changelog")
		}
		record.FullChangelogCHK = chk
		record.FullPath = relToWorkdir(fullPath, w.workdir())
		record.FullSHA256 = fullSHA
		state.Changelogs = record
		if err := w.states.Save(w.ref.Edition, state); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// GenerateDescriptor builds the canonical descriptor document from state,
// writes it to the workdir plus an immutable audit copy, and records its
// content hash. The document is byte-for-byte reproducible for identical
// inputs.
func (w *Workflow) GenerateDescriptor(ctx context.Context) (string, *model.DescriptorResult, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return "", nil, err
	}

	target := filepath.Join(w.workdir(), "core-info.json")

	if len(state.Packages) == 0 {
		if w.dryRun {
			logger.Info("[dry-run] would generate descriptor once artifacts are inserted", "path", target)
			return target, nil, nil
		}
		return "", nil, goerr.New("no package entries available in state; run insert-artifacts first",
			goerr.T(types.ErrTagConfig))
	}

	entries := map[string]model.PackageEntry{}
	for _, key := range model.SortedKeys(state.Packages) {
		record := state.Packages[key]
		size := record.Size
		entries[key] = model.PackageEntry{CHK: record.CHK, Size: &size}
	}

	var changelogCHK, fullChangelogCHK string
	if state.Changelogs != nil {
		changelogCHK = state.Changelogs.ChangelogCHK
		fullChangelogCHK = state.Changelogs.FullChangelogCHK
	}

	result, err := model.BuildDescriptor(w.ref, entries, changelogCHK, fullChangelogCHK)
	if err != nil {
		return "", nil, err
	}

	if w.dryRun {
		logger.Info("[dry-run] would write descriptor", "path", target, "sha256", result.SHA256)
		return target, result, nil
	}

	if err := os.WriteFile(target, result.Document, 0o644); err != nil {
		return "", nil, goerr.Wrap(err, "failed to write descriptor", goerr.V("path", target))
	}
	if err := w.writeAuditCopy(result.Document); err != nil {
		return "", nil, err
	}

	state.CoreInfo = &model.CoreInfoRecord{
		Path:        relToWorkdir(target, w.workdir()),
		SHA256:      result.SHA256,
		GeneratedAt: model.NowUTC(),
	}
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return "", nil, err
	}
	logger.Info("generated descriptor", "path", target, "sha256", result.SHA256)
	return target, result, nil
}

// writeAuditCopy keeps one immutable descriptor copy per edition. An
// existing audit copy with different bytes means the descriptor changed for
// an already-generated edition, which must never happen silently.
func (w *Workflow) writeAuditCopy(document []byte) error {
	auditDir := filepath.Join(w.workdir(), "audit")
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create audit directory", goerr.V("dir", auditDir))
	}
	auditPath := filepath.Join(auditDir, "core-info."+w.ref.Edition+".json")

	existing, err := os.ReadFile(auditPath)
	if err == nil {
		if !bytes.Equal(existing, document) {
			return goerr.New("immutable audit descriptor already exists with different content",
				goerr.T(types.ErrTagConflict), goerr.V("path", auditPath))
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return goerr.Wrap(err, "failed to read audit descriptor", goerr.V("path", auditPath))
	}
	if err := os.WriteFile(auditPath, document, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write audit descriptor", goerr.V("path", auditPath))
	}
	return nil
}

// PublishDescriptor publishes the descriptor under the target's channel key
// at this edition number. Re-publishing an unchanged descriptor is a no-op;
// a changed descriptor for an already-published edition is a conflict unless
// force is set.
func (w *Workflow) PublishDescriptor(ctx context.Context, target PublishTarget, force bool) (string, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return "", err
	}

	descriptorPath := filepath.Join(w.workdir(), "core-info.json")
	if state.CoreInfo == nil || !fileExists(absFromWorkdir(stateCoreInfoPath(state), w.workdir())) {
		if descriptorPath, _, err = w.GenerateDescriptor(ctx); err != nil {
			return "", err
		}
		if state, err = w.loadState(); err != nil {
			return "", err
		}
	} else {
		descriptorPath = absFromWorkdir(state.CoreInfo.Path, w.workdir())
	}

	signingBase, err := target.SigningBase(ctx)
	if err != nil {
		return "", err
	}
	targetURI, err := fcp.TargetURI(signingBase, w.ref.Edition)
	if err != nil {
		return "", err
	}

	if w.dryRun {
		logger.Info("[dry-run] would publish descriptor",
			"path", descriptorPath, "target", target.Name())
		return targetURI, nil
	}
	if w.store == nil {
		return "", goerr.New("content store is required for publish-descriptor", goerr.T(types.ErrTagConfig))
	}

	coreSHA := ""
	if state.CoreInfo != nil {
		coreSHA = state.CoreInfo.SHA256
	}
	if existing, ok := state.Published[target.Name()]; ok {
		if existing.DescriptorURI == targetURI && existing.CoreSHA256 == coreSHA && existing.ResultURI != "" {
			logger.Info("descriptor already published to target; skipping",
				"target", target.Name(), "uri", existing.ResultURI)
			return existing.ResultURI, nil
		}
		if existing.CoreSHA256 != coreSHA && !force {
			return "", goerr.New("descriptor changed for an edition already published to this target; bump the edition or pass --force-republish",
				goerr.T(types.ErrTagConflict),
				goerr.V("target", target.Name()),
				goerr.V("published_sha256", existing.CoreSHA256),
				goerr.V("current_sha256", coreSHA),
			)
		}
	}

	resultURI, err := w.store.InsertFile(ctx, targetURI, descriptorPath, w.putOpts)
	if err != nil {
		return "", goerr.Wrap(err, "failed to publish descriptor", goerr.V("target", target.Name()))
	}

	if state.Published == nil {
		state.Published = map[string]model.PublicationRecord{}
	}
	state.Published[target.Name()] = model.PublicationRecord{
		DescriptorURI: targetURI,
		ResultURI:     resultURI,
		CoreSHA256:    coreSHA,
		PublishedAt:   model.NowUTC(),
	}
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return "", err
	}
	logger.Info("published descriptor", "target", target.Name(), "uri", resultURI)
	return resultURI, nil
}

func (w *Workflow) fetchRelease(ctx context.Context, state *model.PipelineState) (*model.Release, error) {
	release, err := w.source.GetReleaseByTag(ctx, w.ref.Owner, w.ref.Repo, w.ref.Tag)
	if err != nil {
		return nil, err
	}

	snapshotPath := filepath.Join(w.workdir(), "release.json")
	if err := os.MkdirAll(w.workdir(), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create workdir", goerr.V("dir", w.workdir()))
	}
	if err := os.WriteFile(snapshotPath, release.Raw, 0o644); err != nil {
		return nil, goerr.Wrap(err, "failed to write release snapshot", goerr.V("path", snapshotPath))
	}

	state.GitHubRelease = &model.ReleaseSnapshotInfo{
		ID:        release.ID,
		TagName:   release.TagName,
		FetchedAt: model.NowUTC(),
	}
	state.ReleaseBody = release.Body
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return nil, err
	}
	return release, nil
}

func (w *Workflow) ensureReleaseBody(ctx context.Context, state *model.PipelineState) (string, error) {
	if state.ReleaseBody != "" {
		return state.ReleaseBody, nil
	}
	if _, err := w.fetchRelease(ctx, state); err != nil {
		return "", err
	}
	return state.ReleaseBody, nil
}

func (w *Workflow) cachedAssetsExist(assets map[string]model.AssetRecord) bool {
	for _, record := range assets {
		if record.Path == "" {
			return false
		}
		if !fileExists(absFromWorkdir(record.Path, w.workdir())) {
			return false
		}
	}
	return true
}

func stateCoreInfoPath(state *model.PipelineState) string {
	if state.CoreInfo == nil {
		return ""
	}
	return state.CoreInfo.Path
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func sha256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open file for hashing", goerr.V("path", path))
	}
	defer file.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", goerr.Wrap(err, "failed to hash file", goerr.V("path", path))
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

func relToWorkdir(path, workdir string) string {
	rel, err := filepath.Rel(workdir, path)
	if err != nil {
		return path
	}
	return rel
}

func absFromWorkdir(path, workdir string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workdir, path)
}
