// Package validator implements the pure, side-effect-free input validation
// used at every external boundary before a filesystem or Git operation is
// attempted.
package validator

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vatsan127/config-server/cerrors"
)

const (
	maxNamespaceLen      = 50
	maxAppNameLen        = 50
	maxSecretKeyLen      = 100
	maxEmailLen          = 100
	maxCommitMessageLen  = 500
	maxProfileTotalLen   = 200
	maxProfileSegmentLen = 50
)

var reservedNamespaces = map[string]struct{}{
	"system":    {},
	"admin":     {},
	"dashboard": {},
	"default":   {},
	"log":       {},
	"root":      {},
}

var (
	safeNameRe         = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9_-]*[A-Za-z0-9])?$`)
	safePathRe         = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)
	secretKeySegmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	emailRe            = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	commitIDRe         = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)
)

var forbiddenCommitMessageSubstrings = []string{"<script", "javascript:", "data:text/html"}

// ValidateNamespace checks that name is a legal, non-reserved namespace name.
func ValidateNamespace(name string) error {
	if name == "" {
		return cerrors.New(cerrors.CodeInvalidNamespace, "namespace must not be empty")
	}
	if len(name) > maxNamespaceLen {
		return cerrors.New(cerrors.CodeInvalidNamespace, "namespace exceeds maximum length")
	}
	if !safeNameRe.MatchString(name) {
		return cerrors.New(cerrors.CodeInvalidNamespace, "namespace contains invalid characters")
	}
	if _, reserved := reservedNamespaces[strings.ToLower(name)]; reserved {
		return cerrors.New(cerrors.CodeInvalidNamespace, "namespace is reserved")
	}
	return nil
}

// ValidateAppName checks that name is a legal application name.
func ValidateAppName(name string) error {
	if name == "" {
		return cerrors.New(cerrors.CodeInvalidAppName, "app name must not be empty")
	}
	if len(name) > maxAppNameLen {
		return cerrors.New(cerrors.CodeInvalidAppName, "app name exceeds maximum length")
	}
	if !safeNameRe.MatchString(name) {
		return cerrors.New(cerrors.CodeInvalidAppName, "app name contains invalid characters")
	}
	return nil
}

// ValidateSafePath checks a relative path for traversal sequences and an
// allowed character set. A leading "/" is stripped before matching.
func ValidateSafePath(path string) error {
	if path == "" {
		return cerrors.New(cerrors.CodeInvalidPath, "path must not be empty")
	}
	if strings.Contains(path, "..") || strings.Contains(path, "./") || strings.Contains(path, "\\") {
		return cerrors.New(cerrors.CodeInvalidPath, "path must not contain traversal sequences")
	}
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" || !safePathRe.MatchString(trimmed) {
		return cerrors.New(cerrors.CodeInvalidPath, "path contains invalid characters")
	}
	return nil
}

// ValidateSecretKey checks a vault key: bounded length, dotted segments each
// matching the safe-name character class, no leading/trailing/consecutive
// dots.
func ValidateSecretKey(key string) error {
	if key == "" || len(key) > maxSecretKeyLen {
		return cerrors.New(cerrors.CodeInvalidContent, "secret key length out of bounds")
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") || strings.Contains(key, "..") {
		return cerrors.New(cerrors.CodeInvalidContent, "secret key has malformed dot segments")
	}
	for _, segment := range strings.Split(key, ".") {
		if !secretKeySegmentRe.MatchString(segment) {
			return cerrors.New(cerrors.CodeInvalidContent, "secret key segment contains invalid characters")
		}
	}
	return nil
}

// ValidateEmail checks a basic email shape and length bound.
func ValidateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen || !emailRe.MatchString(email) {
		return cerrors.New(cerrors.CodeInvalidEmail, "email is not well-formed")
	}
	return nil
}

// ValidateCommitID checks that id is a hex string of plausible commit-hash
// length (short or full SHA-1).
func ValidateCommitID(id string) error {
	if !commitIDRe.MatchString(id) {
		return cerrors.New(cerrors.CodeInvalidCommitID, "commit id must be 7-64 hex characters")
	}
	return nil
}

// ValidateYAMLContent checks that content parses as one or more YAML
// documents without error.
func ValidateYAMLContent(content string) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var doc any
		err := dec.Decode(&doc)
		if err != nil {
			if err.Error() == "EOF" {
				return nil
			}
			return cerrors.Wrap(cerrors.CodeInvalidYAML, "content is not valid YAML", err)
		}
	}
}

// ValidateCommitMessage checks length bounds and rejects a small denylist of
// substrings that could indicate script injection into tooling that renders
// commit messages as HTML.
func ValidateCommitMessage(message string) error {
	if message == "" {
		return cerrors.New(cerrors.CodeInvalidCommitMessage, "commit message must not be empty")
	}
	if len(message) > maxCommitMessageLen {
		return cerrors.New(cerrors.CodeInvalidCommitMessage, "commit message exceeds maximum length")
	}
	lower := strings.ToLower(message)
	for _, bad := range forbiddenCommitMessageSubstrings {
		if strings.Contains(lower, bad) {
			return cerrors.New(cerrors.CodeInvalidCommitMessage, "commit message contains disallowed content")
		}
	}
	return nil
}

// ValidateProfile checks a comma-separated profile list: total length bound,
// per-segment length bound, each segment either "default" or a safe name.
func ValidateProfile(profile string) error {
	if profile == "" {
		return nil
	}
	if len(profile) > maxProfileTotalLen {
		return cerrors.New(cerrors.CodeInvalidContent, "profile list exceeds maximum length")
	}
	for _, segment := range strings.Split(profile, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" || len(segment) > maxProfileSegmentLen {
			return cerrors.New(cerrors.CodeInvalidContent, "profile segment length out of bounds")
		}
		if segment == "default" {
			continue
		}
		if !safeNameRe.MatchString(segment) {
			return cerrors.New(cerrors.CodeInvalidContent, "profile segment contains invalid characters")
		}
	}
	return nil
}

// SplitProfiles splits a validated profile string into its trimmed,
// non-"default" segments, preserving left-to-right order.
func SplitProfiles(profile string) []string {
	if profile == "" {
		return nil
	}
	var out []string
	for _, segment := range strings.Split(profile, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" || segment == "default" {
			continue
		}
		out = append(out, segment)
	}
	return out
}
