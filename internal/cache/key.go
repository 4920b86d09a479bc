// Package cache implements the content-addressed source cache backing the
// dependency resolver's fast manifest-only path and the source acquirer's
// full fetch path.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GitRefKind identifies how a git ref is pinned.
type GitRefKind int

const (
	// GitRefBranch pins to a branch name.
	GitRefBranch GitRefKind = iota

	// GitRefTag pins to a tag name.
	GitRefTag

	// GitRefRev pins to an exact commit revision.
	GitRefRev
)

// String returns the descriptor prefix used in the cache key for this ref
// kind, matching the wire vocabulary ("branch:", "tag:", "rev:").
func (k GitRefKind) String() string {
	switch k {
	case GitRefBranch:
		return "branch:"
	case GitRefTag:
		return "tag:"
	case GitRefRev:
		return "rev:"
	default:
		return "unknown:"
	}
}

// SourceDescriptor is the normalized, hashable representation of an
// ActorSource. Two sources that describe the same content MUST produce the
// same descriptor regardless of which logical name references them.
type SourceDescriptor struct {
	// Path is set for a path source; empty for git sources.
	Path string

	// GitURL, GitRefKind, GitRefValue, and SubDir are set for a git
	// source.
	GitURL      string
	GitRefKind  GitRefKind
	GitRefValue string
	SubDir      string

	// isGit distinguishes an (unset) path source from a git source, since
	// a zero-value GitRefKind is also a valid value (GitRefBranch).
	isGit bool
}

// PathSource builds a SourceDescriptor for a local directory source.
func PathSource(path string) SourceDescriptor {
	return SourceDescriptor{Path: path}
}

// GitSource builds a SourceDescriptor for a git source.
func GitSource(url string, refKind GitRefKind, refValue, subDir string) SourceDescriptor {
	return SourceDescriptor{
		GitURL:      url,
		GitRefKind:  refKind,
		GitRefValue: refValue,
		SubDir:      subDir,
		isGit:       true,
	}
}

// IsGit reports whether this descriptor names a git source.
func (d SourceDescriptor) IsGit() bool {
	return d.isGit
}

// canonical renders the descriptor into the exact string the cache key hash
// is computed over:
//
//	"path:" + path
//	"git:" + url + ("branch:"|"tag:"|"rev:") + value + ("sub_dir:" + d)?
func (d SourceDescriptor) canonical() string {
	if !d.isGit {
		return "path:" + d.Path
	}

	s := "git:" + d.GitURL + d.GitRefKind.String() + d.GitRefValue
	if d.SubDir != "" {
		s += "sub_dir:" + d.SubDir
	}

	return s
}

// Hash computes the content-address cache key for this source descriptor:
// the lowercase hex-encoded SHA-256 digest of its canonical string form.
func (d SourceDescriptor) Hash() string {
	sum := sha256.Sum256([]byte(d.canonical()))
	return hex.EncodeToString(sum[:])
}

// String renders a human-readable form for logs and error messages.
func (d SourceDescriptor) String() string {
	if !d.isGit {
		return fmt.Sprintf("path:%s", d.Path)
	}

	if d.SubDir != "" {
		return fmt.Sprintf(
			"git:%s@%s%s sub_dir=%s", d.GitURL, d.GitRefKind,
			d.GitRefValue, d.SubDir,
		)
	}

	return fmt.Sprintf("git:%s@%s%s", d.GitURL, d.GitRefKind, d.GitRefValue)
}
