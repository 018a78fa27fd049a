package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	errOutsideRoot       = errors.New("outside the allowed root")
	errLocalReference    = errors.New("local references are not accepted")
	errClientOutput      = errors.New("output_location is not accepted")
	errUnsupportedScheme = errors.New("unsupported scheme")
)

// PathPolicy confines the local files and storage locations API clients
// may name. The zero value accepts http(s) references only and rejects
// client output locations.
type PathPolicy struct {
	// ReferenceRoot is the directory local references are resolved in
	ReferenceRoot string

	// OutputRoot is a directory, file:// or s3:// location that client
	// output locations must fall under
	OutputRoot string
}

// Reference returns the location the server reads ref from. Remote
// references pass through; local ones are resolved inside ReferenceRoot.
func (p PathPolicy) Reference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if isHTTPURL(ref) {
		return ref, nil
	}
	if strings.Contains(ref, "://") {
		return "", errUnsupportedScheme
	}
	if p.ReferenceRoot == "" {
		return "", errLocalReference
	}
	return within(p.ReferenceRoot, ref)
}

// Output returns the sink location for a client-supplied output_location.
// An empty location discards artifacts and is always allowed.
func (p PathPolicy) Output(loc string) (string, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", nil
	}
	if p.OutputRoot == "" {
		return "", errClientOutput
	}

	rootScheme, rootRest := splitLocation(p.OutputRoot)
	scheme, rest := splitLocation(loc)

	switch rootScheme {
	case "s3":
		if scheme != "s3" {
			return "", errOutsideRoot
		}
		root := path.Clean("/" + rootRest)
		target := path.Clean("/" + rest)
		if target != root && !strings.HasPrefix(target, strings.TrimSuffix(root, "/")+"/") {
			return "", errOutsideRoot
		}
		return "s3://" + strings.TrimPrefix(target, "/"), nil
	case "", "file":
		if scheme != "" && scheme != "file" {
			return "", errOutsideRoot
		}
		return within(rootRest, rest)
	}
	return "", errUnsupportedScheme
}

// within resolves p against root and fails when the cleaned result
// escapes root.
func within(root, p string) (string, error) {
	if p == "" {
		return "", errOutsideRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return target, nil
}

func splitLocation(loc string) (scheme, rest string) {
	scheme, rest, ok := strings.Cut(loc, "://")
	if !ok {
		return "", loc
	}
	return scheme, rest
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
