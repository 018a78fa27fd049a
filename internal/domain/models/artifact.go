package models

// ImageArtifact is an image produced by the generative service.
// Data holds the raw bytes when the service returned an inline payload;
// URL is set when it returned a link instead. Location is filled once the
// artifact is written to the output sink.
type ImageArtifact struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty" msgpack:"url,omitempty"`
	Location    string `json:"location,omitempty" msgpack:"location,omitempty"`
	ContentType string `json:"content_type,omitempty" msgpack:"content_type,omitempty"`
	Data        []byte `json:"-" msgpack:"-"`
}

// Usable reports whether the artifact carries a payload or a URL.
func (a *ImageArtifact) Usable() bool {
	return a != nil && (len(a.Data) > 0 || a.URL != "")
}

// Input returns the artifact as service input.
func (a *ImageArtifact) Input() ImageInput {
	if a == nil {
		return ImageInput{}
	}
	return ImageInput{
		URL:         a.URL,
		Data:        a.Data,
		ContentType: a.ContentType,
	}
}

// Ref returns the most durable way to address the artifact.
func (a *ImageArtifact) Ref() string {
	if a == nil {
		return ""
	}
	if a.Location != "" {
		return a.Location
	}
	if a.URL != "" {
		return a.URL
	}
	return a.ID
}
