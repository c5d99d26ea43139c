package backend

import (
	"bytes"
	"mime"

	"scrapectl/internal/job"
)

// MediaType returns the payload's media type without parameters.
func (p *Payload) MediaType() string {
	mt, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return ""
	}
	return mt
}

// ArtifactFormat reports whether the payload is an artifact body and in
// which format. An xlsx body is always an artifact. A JSON body counts only
// when it is an array of rows, since acknowledgements are JSON objects.
func (p *Payload) ArtifactFormat() (job.Format, bool) {
	if len(p.Body) == 0 {
		return "", false
	}
	switch p.MediaType() {
	case job.MIMEXLSX:
		return job.FormatExcel, true
	case job.MIMEJSON:
		if trimmed := bytes.TrimSpace(p.Body); len(trimmed) > 0 && trimmed[0] == '[' {
			return job.FormatJSON, true
		}
	}
	return "", false
}
