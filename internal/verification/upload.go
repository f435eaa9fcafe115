package verification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/common"
)

// maxUploadSize caps evidence files at 10 MiB, matching the upstream's
// request size limit.
const maxUploadSize = 10 << 20

// Upload is a file handed in for evidence submission, already read into
// memory because image uploads are re-encoded inline.
type Upload struct {
	FileName    string
	ContentType string
	Content     []byte
}

type uploadClass int

const (
	classImage uploadClass = iota
	classDocument
)

// allowedUploads maps the accepted file extensions to their required media
// type and transport class. Validation checks both sides so a renamed
// binary or a mislabelled request is rejected either way.
var allowedUploads = map[string]struct {
	mediaType string
	class     uploadClass
}{
	".jpg":  {"image/jpeg", classImage},
	".jpeg": {"image/jpeg", classImage},
	".png":  {"image/png", classImage},
	".gif":  {"image/gif", classImage},
	".webp": {"image/webp", classImage},
	".pdf":  {"application/pdf", classDocument},
	".doc":  {"application/msword", classDocument},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", classDocument},
	".xls":  {"application/vnd.ms-excel", classDocument},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", classDocument},
	".ppt":  {"application/vnd.ms-powerpoint", classDocument},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", classDocument},
}

// classifiedUpload is an Upload that passed validation, with its transport
// class fixed. The class depends only on the file kind, never on which
// requirement it is submitted for.
type classifiedUpload struct {
	Upload
	class     uploadClass
	mediaType string
}

// classifyUpload validates the file against the allow list and size cap
// and decides its transport. Every rejection is an invalid-file error so
// the caller can surface it without a remote round trip.
func classifyUpload(u Upload) (*classifiedUpload, error) {
	if u.FileName == "" {
		return nil, common.NewInvalidFileError("file name is required")
	}
	ext := strings.ToLower(filepath.Ext(u.FileName))
	allowed, ok := allowedUploads[ext]
	if !ok {
		return nil, common.NewInvalidFileError(fmt.Sprintf("file type %q is not accepted", ext))
	}
	// a missing declared type falls back to the extension's type; a
	// mismatched one is rejected
	declared := normalizeMediaType(u.ContentType)
	if declared != "" && declared != allowed.mediaType {
		return nil, common.NewInvalidFileError(
			fmt.Sprintf("media type %q does not match %s file", u.ContentType, ext))
	}
	if len(u.Content) == 0 {
		return nil, common.NewInvalidFileError("file is empty")
	}
	if len(u.Content) > maxUploadSize {
		return nil, common.NewInvalidFileError("file exceeds the 10 MiB limit")
	}
	return &classifiedUpload{Upload: u, class: allowed.class, mediaType: allowed.mediaType}, nil
}

func (c *classifiedUpload) IsImage() bool {
	return c.class == classImage
}

// DataURL renders the file as a base64 data URL for inline JSON transport.
func (c *classifiedUpload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", c.mediaType, base64.StdEncoding.EncodeToString(c.Content))
}

// FilePart prepares the file as the multipart document part.
func (c *classifiedUpload) FilePart() apiclient.FilePart {
	return apiclient.FilePart{
		FieldName:   "document",
		FileName:    c.FileName,
		ContentType: c.mediaType,
		Content:     bytes.NewReader(c.Content),
	}
}

// normalizeMediaType lowercases the declared type and strips parameters
// like charset so "Image/JPEG; q=1" still matches.
func normalizeMediaType(raw string) string {
	mt := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
