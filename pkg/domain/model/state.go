package model

import "time"

// PipelineState is the durable per-edition record of pipeline progress.
// Every stage loads it, performs only the side effects whose results are not
// yet recorded, and saves it back. It is never deleted automatically.
type PipelineState struct {
	Release       *ReleaseIdentity              `json:"release,omitempty"`
	GitHubRelease *ReleaseSnapshotInfo          `json:"github_release,omitempty"`
	ReleaseBody   string                        `json:"github_release_body,omitempty"`
	Assets        map[string]AssetRecord        `json:"assets,omitempty"`
	Packages      map[string]PackageRecord      `json:"packages,omitempty"`
	Changelogs    *ChangelogRecord              `json:"changelogs,omitempty"`
	CoreInfo      *CoreInfoRecord               `json:"core_info,omitempty"`
	Published     map[string]PublicationRecord  `json:"published,omitempty"`
	Verification  map[string]VerificationRecord `json:"verification,omitempty"`
}

// ReleaseIdentity pins the state directory to one release. A run whose
// parsed release ref differs from the recorded identity must abort.
type ReleaseIdentity struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Tag            string `json:"tag"`
	Edition        string `json:"edition"`
	ReleasePageURL string `json:"release_page_url"`
}

// ReleaseSnapshotInfo records which GitHub release payload was fetched.
type ReleaseSnapshotInfo struct {
	ID        int64  `json:"id"`
	TagName   string `json:"tag_name"`
	FetchedAt string `json:"fetched_at"`
}

// AssetRecord is a downloaded release asset with local integrity data.
type AssetRecord struct {
	AssetID            int64  `json:"asset_id"`
	AssetName          string `json:"asset_name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Path               string `json:"path"` // relative to the edition workdir
	Size               int64  `json:"size"`
	SHA256             string `json:"sha256"`
}

// PackageRecord is an inserted artifact with its content address. Never
// mutated once the insert succeeds.
type PackageRecord struct {
	CHK       string `json:"chk"`
	Size      int64  `json:"size"`
	AssetName string `json:"asset_name"`
}

// ChangelogRecord caches the short/full changelog blobs and their addresses.
type ChangelogRecord struct {
	ChangelogCHK     string `json:"changelog_chk,omitempty"`
	FullChangelogCHK string `json:"fullchangelog_chk,omitempty"`
	ShortPath        string `json:"short_path,omitempty"`
	FullPath         string `json:"full_path,omitempty"`
	ShortSHA256      string `json:"short_sha256,omitempty"`
	FullSHA256       string `json:"full_sha256,omitempty"`
}

// CoreInfoRecord tracks the last generated descriptor document.
type CoreInfoRecord struct {
	Path        string `json:"path"`
	SHA256      string `json:"sha256"`
	GeneratedAt string `json:"generated_at"`
}

// PublicationRecord is one target's publication of this edition.
type PublicationRecord struct {
	DescriptorURI string `json:"descriptor_uri"`
	ResultURI     string `json:"result_uri"`
	CoreSHA256    string `json:"core_sha256"`
	PublishedAt   string `json:"published_at"`
}

// VerificationRecord summarizes the last verify run against a target.
type VerificationRecord struct {
	OK            bool   `json:"ok"`
	CheckedAt     string `json:"checked_at"`
	DescriptorURI string `json:"descriptor_uri"`
	ReportFile    string `json:"verify_report"`
}

// NowUTC renders the timestamp format used in persisted records.
func NowUTC() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}
