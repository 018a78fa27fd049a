package models

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// ReferenceImage is one target image the search tries to reproduce.
// Path is either a local filesystem path or an http(s) URL.
type ReferenceImage struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Path  string `json:"path"`
}

// Input returns the image as service input.
func (r ReferenceImage) Input() ImageInput {
	return ImageInput{
		Path:        r.Path,
		ContentType: contentTypeForPath(r.Path),
	}
}

// ReferenceSet is the ordered, immutable list of references for a run.
type ReferenceSet []ReferenceImage

// NewReferenceSet builds a ReferenceSet from paths, preserving order.
// Blank entries are skipped; an empty result is returned as-is and
// rejected by the search service.
func NewReferenceSet(paths ...string) ReferenceSet {
	refs := make(ReferenceSet, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idx := len(refs)
		refs = append(refs, ReferenceImage{
			Index: idx,
			ID:    fmt.Sprintf("ref-%d", idx),
			Path:  p,
		})
	}
	return refs
}

// Paths returns the reference paths in order.
func (s ReferenceSet) Paths() []string {
	paths := make([]string, len(s))
	for i, r := range s {
		paths[i] = r.Path
	}
	return paths
}

// ImageInput is an image handed to the generative service, either by
// location (Path or URL) or inline bytes.
type ImageInput struct {
	Path        string
	URL         string
	Data        []byte
	ContentType string
}

// IsRemote reports whether the image is addressed by an http(s) URL.
func (i ImageInput) IsRemote() bool {
	src := i.URL
	if src == "" {
		src = i.Path
	}
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Empty reports whether the input carries no image at all.
func (i ImageInput) Empty() bool {
	return i.Path == "" && i.URL == "" && len(i.Data) == 0
}

func contentTypeForPath(p string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(p, "?", 2)[0]))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "image/png"
}
