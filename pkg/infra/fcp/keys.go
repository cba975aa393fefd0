package fcp

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// Descriptor documents live under a fixed site name; successive editions of
// a channel are published as <base><edition>.
const descriptorSiteName = "info/"

// ValidateBase checks a channel base URI: non-empty and ending in "/info/".
func ValidateBase(base string) (string, error) {
	normalized := strings.TrimSpace(base)
	if normalized == "" {
		return "", goerr.New("update channel base URI is empty", goerr.T(types.ErrTagConfig))
	}
	if !strings.HasSuffix(normalized, "/"+descriptorSiteName) {
		return "", goerr.New("update channel base must end with '/info/'",
			goerr.T(types.ErrTagConfig), goerr.V("base", normalized))
	}
	return normalized, nil
}

// TargetURI returns the publication locator of one edition under a base.
func TargetURI(base, edition string) (string, error) {
	validated, err := ValidateBase(base)
	if err != nil {
		return "", err
	}
	return validated + edition, nil
}

// InfoBase converts a raw node key (SSK or USK root) into a channel base URI
// ending in "/info/".
func InfoBase(key string) (string, error) {
	root, err := toUSKRoot(key)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(root, "/"+descriptorSiteName) {
		return root, nil
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root + descriptorSiteName, nil
}

// LooksPrivate reports whether a base URI carries insert-side key material.
// Private keys must never be used for verification.
func LooksPrivate(base string) bool {
	normalized := strings.TrimSpace(base)
	if strings.HasPrefix(normalized, "SSK@") {
		return true
	}
	return strings.HasPrefix(normalized, "USK@") && strings.Contains(normalized, ",AQECAAE/")
}

func toUSKRoot(key string) (string, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return "", goerr.New("empty key returned from FCP node")
	}
	if strings.HasPrefix(normalized, "USK@") {
		return normalized, nil
	}
	if strings.HasPrefix(normalized, "SSK@") {
		return "USK@" + strings.TrimPrefix(normalized, "SSK@"), nil
	}
	return "", goerr.New("unsupported key format returned by FCP node", goerr.V("key", normalized))
}

func rootFromInfoBase(base string) (string, error) {
	normalized := strings.TrimSpace(base)
	if normalized == "" {
		return "", goerr.New("empty channel base URI", goerr.T(types.ErrTagConfig))
	}
	if strings.HasSuffix(normalized, "/"+descriptorSiteName) {
		return strings.TrimSuffix(normalized, descriptorSiteName), nil
	}
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	return normalized, nil
}
