package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/domain/types"
	"github.com/cryptad/update-releaser/pkg/infra/fcp"
	"github.com/cryptad/update-releaser/pkg/utils/parallel"
)

// VerifyOptions tune a verification run.
type VerifyOptions struct {
	// Timeout bounds each individual network check.
	Timeout time.Duration

	// Deep downloads every referenced content address instead of only
	// checking availability.
	Deep bool
}

var filenameSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Verify fetches the descriptor currently published for the target, checks
// that it identifies this edition, and confirms every referenced content
// address is retrievable. All failures are enumerated in the report; the
// returned error distinguishes identity mismatches from unavailability.
func (w *Workflow) Verify(ctx context.Context, target PublishTarget, opts VerifyOptions) (*model.VerifyReport, error) {
	logger := ctxlog.From(ctx)
	state, err := w.loadState()
	if err != nil {
		return nil, err
	}

	descriptorURI, err := w.descriptorURIForTarget(ctx, target, state)
	if err != nil {
		return nil, err
	}
	fallbackURI := ""
	if record, ok := state.Published[target.Name()]; ok {
		fallbackURI = record.ResultURI
	}

	report := &model.VerifyReport{
		DescriptorURI:  descriptorURI,
		CheckedAt:      model.NowUTC(),
		Deep:           opts.Deep,
		DryRun:         w.dryRun,
		FetchSource:    "requested",
		SchemaErrors:   []string{},
		IdentityErrors: []string{},
		CHKChecks:      []model.CHKCheck{},
	}

	if w.dryRun {
		logger.Info("[dry-run] would verify published descriptor", "uri", descriptorURI)
		report.OK = true
		if err := w.writeVerifyReport(report); err != nil {
			return nil, err
		}
		return report, nil
	}
	if w.store == nil {
		return nil, goerr.New("content store is required for verify", goerr.T(types.ErrTagConfig))
	}

	if err := w.runVerification(ctx, report, descriptorURI, fallbackURI, opts); err != nil {
		return nil, err
	}

	if err := w.writeVerifyReport(report); err != nil {
		return nil, err
	}
	if state.Verification == nil {
		state.Verification = map[string]model.VerificationRecord{}
	}
	state.Verification[target.Name()] = model.VerificationRecord{
		OK:            report.OK,
		CheckedAt:     report.CheckedAt,
		DescriptorURI: descriptorURI,
		ReportFile:    "verify.json",
	}
	if err := w.states.Save(w.ref.Edition, state); err != nil {
		return nil, err
	}

	if report.OK {
		return report, nil
	}
	return report, verificationError(report)
}

func (w *Workflow) runVerification(ctx context.Context, report *model.VerifyReport, descriptorURI, fallbackURI string, opts VerifyOptions) error {
	logger := ctxlog.From(ctx)

	payload, resolvedURI, err := w.fetchDescriptorWithFallback(ctx, report, descriptorURI, fallbackURI, opts.Timeout)
	if err != nil {
		return err
	}
	report.DescriptorURIResolved = resolvedURI

	var document map[string]any
	if err := json.Unmarshal(payload, &document); err != nil {
		return goerr.Wrap(err, "published descriptor is not valid JSON", goerr.V("uri", resolvedURI))
	}
	if version, ok := document["version"].(string); ok {
		report.DescriptorVersion = version
	}
	if releaseURL, ok := document["release_page_url"].(string); ok {
		report.DescriptorReleaseURL = releaseURL
	}

	report.SchemaErrors = validateDescriptorDocument(document)
	report.IdentityErrors = validateDescriptorIdentity(document, w.ref.Edition, w.ref.ReleasePageURL)

	downloadDir := filepath.Join(w.workdir(), "downloads")
	if opts.Deep {
		if err := os.MkdirAll(downloadDir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create download directory", goerr.V("dir", downloadDir))
		}
	}

	type pendingCheck struct {
		kind string
		key  string
		chk  string
		dest string
	}
	var checks []pendingCheck
	if packages, ok := document["packages"].(map[string]any); ok {
		for _, key := range model.SortedKeys(packages) {
			entry, ok := packages[key].(map[string]any)
			if !ok {
				continue
			}
			if chk, ok := entry["chk"].(string); ok {
				checks = append(checks, pendingCheck{
					kind: "package",
					key:  key,
					chk:  chk,
					dest: filepath.Join(downloadDir, sanitizeFilename(key)+".bin"),
				})
			}
		}
	}
	for _, field := range []string{"changelog_chk", "fullchangelog_chk"} {
		if chk, ok := document[field].(string); ok {
			checks = append(checks, pendingCheck{
				kind: "changelog",
				key:  field,
				chk:  chk,
				dest: filepath.Join(downloadDir, field+".txt"),
			})
		}
	}

	results := make([]model.CHKCheck, len(checks))
	indexes := make([]int, len(checks))
	for i := range checks {
		indexes[i] = i
	}
	forEachErr := parallel.ForEach(ctx, w.parallel, indexes, func(ctx context.Context, i int) error {
		check := checks[i]
		result := model.CHKCheck{Kind: check.kind, Key: check.key, CHK: check.chk}

		opCtx, cancel := contextWithTimeout(ctx, opts.Timeout)
		defer cancel()

		if opts.Deep {
			payload, err := w.store.Fetch(opCtx, check.chk)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Retrievable = true
				if err := os.WriteFile(check.dest, payload, 0o644); err != nil {
					result.Error = err.Error()
					result.Retrievable = false
				}
			}
		} else {
			retrievable, err := w.store.CheckRetrievable(opCtx, check.chk)
			result.Retrievable = retrievable
			if err != nil {
				result.Error = err.Error()
			}
		}

		logger.Info("checked content address",
			"kind", check.kind, "key", check.key, "retrievable", result.Retrievable)
		results[i] = result
		return nil
	})
	// The checks themselves record failures in their results; an error here
	// means cancellation, and a half-run set of checks must not be recorded
	// as content unavailability.
	if forEachErr != nil {
		return goerr.Wrap(forEachErr, "verification checks interrupted")
	}

	allRetrievable := true
	for _, result := range results {
		report.CHKChecks = append(report.CHKChecks, result)
		allRetrievable = allRetrievable && result.Retrievable
	}

	report.OK = len(report.SchemaErrors) == 0 && len(report.IdentityErrors) == 0 && allRetrievable
	return nil
}

// fetchDescriptorWithFallback retrieves the published descriptor, falling
// back to the locator recorded at publish time when the edition-keyed URI is
// not yet resolvable.
func (w *Workflow) fetchDescriptorWithFallback(ctx context.Context, report *model.VerifyReport, descriptorURI, fallbackURI string, timeout time.Duration) ([]byte, string, error) {
	logger := ctxlog.From(ctx)

	opCtx, cancel := contextWithTimeout(ctx, timeout)
	payload, primaryErr := w.store.Fetch(opCtx, descriptorURI)
	cancel()
	if primaryErr == nil {
		return payload, descriptorURI, nil
	}

	if fallbackURI == "" || fallbackURI == descriptorURI {
		return nil, "", goerr.Wrap(primaryErr, "failed to retrieve published descriptor",
			goerr.V("uri", descriptorURI))
	}

	logger.Warn("primary descriptor fetch failed; retrying with recorded publication locator",
		"primary_uri", descriptorURI, "fallback_uri", fallbackURI)

	opCtx, cancel = contextWithTimeout(ctx, timeout)
	payload, fallbackErr := w.store.Fetch(opCtx, fallbackURI)
	cancel()
	if fallbackErr != nil {
		return nil, "", goerr.Wrap(fallbackErr, "failed to retrieve descriptor from requested URI and recorded publication locator",
			goerr.V("primary_uri", descriptorURI), goerr.V("fallback_uri", fallbackURI))
	}

	report.FallbackUsed = true
	report.FetchSource = "published_result_uri"
	report.PrimaryFetchError = primaryErr.Error()
	return payload, fallbackURI, nil
}

// descriptorURIForTarget resolves where the target's descriptor should be
// fetched from. Staging always resolves through the public key material;
// other targets prefer the locator recorded at publish time.
func (w *Workflow) descriptorURIForTarget(ctx context.Context, target PublishTarget, state *model.PipelineState) (string, error) {
	if target.Name() != types.PublishToStaging {
		if record, ok := state.Published[target.Name()]; ok && record.DescriptorURI != "" {
			return record.DescriptorURI, nil
		}
	}
	base, err := target.PublicBase(ctx)
	if err != nil {
		return "", err
	}
	return fcp.TargetURI(base, w.ref.Edition)
}

func (w *Workflow) writeVerifyReport(report *model.VerifyReport) error {
	if err := os.MkdirAll(w.workdir(), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create workdir", goerr.V("dir", w.workdir()))
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode verify report")
	}
	payload = append(payload, '\n')
	path := filepath.Join(w.workdir(), "verify.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write verify report", goerr.V("path", path))
	}
	return nil
}

// validateDescriptorDocument checks the raw published document against the
// descriptor schema, enumerating every violation.
func validateDescriptorDocument(document map[string]any) []string {
	errs := []string{}

	if version, ok := document["version"].(string); !ok || version == "" {
		errs = append(errs, "'version' must be a non-empty string")
	}
	if releaseURL, ok := document["release_page_url"].(string); !ok || releaseURL == "" {
		errs = append(errs, "'release_page_url' must be a non-empty string")
	}

	for _, field := range []string{"changelog_chk", "fullchangelog_chk"} {
		value, present := document[field]
		if !present {
			continue
		}
		chk, ok := value.(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("'%s' must be a string when present", field))
			continue
		}
		if !hasAnyPrefix(chk, model.CHKPrefixes) {
			errs = append(errs, fmt.Sprintf("'%s' must be a CHK URI when present", field))
		}
	}

	packages, ok := document["packages"].(map[string]any)
	if !ok {
		return append(errs, "'packages' must be an object")
	}
	if len(packages) == 0 {
		return append(errs, "'packages' must not be empty")
	}

	for _, key := range model.SortedKeys(packages) {
		if err := model.ValidatePackageKey(key); err != nil {
			errs = append(errs, fmt.Sprintf("package key %q must follow <arch>.<ext> with a supported arch and extension", key))
			continue
		}
		entry, ok := packages[key].(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("package %q value must be an object", key))
			continue
		}

		_, hasCHK := entry["chk"]
		_, hasStoreURL := entry["store_url"]
		if hasCHK == hasStoreURL {
			errs = append(errs, fmt.Sprintf("package %q must contain exactly one of 'chk' or 'store_url'", key))
		}
		if hasCHK {
			if chk, ok := entry["chk"].(string); !ok || !hasAnyPrefix(chk, model.CHKPrefixes) {
				errs = append(errs, fmt.Sprintf("package %q has invalid 'chk' value", key))
			}
		}
		if hasStoreURL {
			if storeURL, ok := entry["store_url"].(string); !ok || storeURL == "" {
				errs = append(errs, fmt.Sprintf("package %q has invalid 'store_url' value", key))
			}
		}
		if rawSize, present := entry["size"]; present {
			size, ok := rawSize.(float64)
			if !ok || size < 0 || size != float64(int64(size)) {
				errs = append(errs, fmt.Sprintf("package %q has invalid 'size'; must be a non-negative integer", key))
			}
		}
	}
	return errs
}

// validateDescriptorIdentity confirms the published descriptor describes the
// edition under test. A mismatch is a wrong-target or stale-publication bug.
func validateDescriptorIdentity(document map[string]any, expectedVersion, expectedReleaseURL string) []string {
	errs := []string{}

	if expectedVersion != "" {
		actual, ok := document["version"].(string)
		if !ok || actual != expectedVersion {
			errs = append(errs, fmt.Sprintf("descriptor version mismatch: expected %q, got %v", expectedVersion, document["version"]))
		}
	}
	if expectedReleaseURL != "" {
		actual, ok := document["release_page_url"].(string)
		if !ok || actual != expectedReleaseURL {
			errs = append(errs, fmt.Sprintf("descriptor release_page_url mismatch: expected %q, got %v", expectedReleaseURL, document["release_page_url"]))
		}
	}
	return errs
}

// verificationError converts a failing report into an error. Every branch
// carries ErrTagVerifyFailed so a completed-but-failing verification is
// distinguishable from errors that prevented verification from running.
func verificationError(report *model.VerifyReport) error {
	if len(report.IdentityErrors) > 0 {
		return goerr.New("published descriptor does not identify this edition: "+strings.Join(report.IdentityErrors, "; "),
			goerr.T(types.ErrTagVerifyFailed), goerr.T(types.ErrTagIdentity))
	}
	if len(report.SchemaErrors) > 0 {
		return goerr.New("published descriptor violates the schema: "+strings.Join(report.SchemaErrors, "; "),
			goerr.T(types.ErrTagVerifyFailed))
	}

	var unavailable []string
	for _, check := range report.CHKChecks {
		if !check.Retrievable {
			unavailable = append(unavailable, check.CHK)
		}
	}
	return goerr.New("referenced content is not retrievable",
		goerr.T(types.ErrTagVerifyFailed), goerr.T(types.ErrTagUnavailable),
		goerr.V("addresses", unavailable))
}

func contextWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sanitizeFilename(value string) string {
	sanitized := strings.Trim(filenameSanitizeRe.ReplaceAllString(value, "-"), "-")
	if sanitized == "" {
		return "artifact"
	}
	return sanitized
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
