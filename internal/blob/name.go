// Package blob moves contract files into blob storage through backend-issued
// signed write URLs.
package blob

import (
	"path"
	"strconv"
	"strings"
	"time"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// SupportedExtensions are the document types accepted for upload.
var SupportedExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx"}

// ContentType returns the MIME type declared for name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Supported reports whether name has an accepted document extension.
func Supported(name string) bool {
	_, ok := contentTypes[strings.ToLower(path.Ext(name))]
	return ok
}

// ObjectName builds "{prefix}/{sessionID}/{name}", leaving out empty parts.
func ObjectName(prefix, sessionID, name string) string {
	var parts []string
	if sessionID != "" {
		if prefix != "" {
			parts = append(parts, prefix)
		}
		parts = append(parts, sessionID)
	}
	return strings.Join(append(parts, name), "/")
}

// TimestampedName inserts "_<unix millis>" before the extension of name.
func TimestampedName(name string, t time.Time) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.FormatInt(t.UnixMilli(), 10) + ext
}

// StripQuery drops the query string, and with it the SAS credentials, from a
// signed URL. It is idempotent.
func StripQuery(signed string) string {
	base, _, _ := strings.Cut(signed, "?")
	return base
}
