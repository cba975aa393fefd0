package model

// CHKCheck is the retrievability result for one content address referenced
// by a published descriptor.
type CHKCheck struct {
	Kind        string `json:"kind"` // "package" or "changelog"
	Key         string `json:"key"`
	CHK         string `json:"chk"`
	Retrievable bool   `json:"retrievable"`
	Error       string `json:"error,omitempty"`
}

// VerifyReport is the full outcome of a verify run. All failures are
// enumerated; the run does not stop at the first unavailable address.
type VerifyReport struct {
	DescriptorURI         string     `json:"descriptor_uri"`
	DescriptorURIResolved string     `json:"descriptor_uri_resolved,omitempty"`
	CheckedAt             string     `json:"checked_at"`
	Deep                  bool       `json:"deep"`
	DryRun                bool       `json:"dry_run"`
	FallbackUsed          bool       `json:"descriptor_fetch_fallback_used"`
	FetchSource           string     `json:"descriptor_fetch_source"`
	PrimaryFetchError     string     `json:"primary_fetch_error,omitempty"`
	DescriptorVersion     string     `json:"descriptor_version,omitempty"`
	DescriptorReleaseURL  string     `json:"descriptor_release_page_url,omitempty"`
	SchemaErrors          []string   `json:"schema_errors"`
	IdentityErrors        []string   `json:"identity_errors"`
	CHKChecks             []CHKCheck `json:"chk_checks"`
	OK                    bool       `json:"ok"`
}
