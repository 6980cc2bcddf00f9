package normalize

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultDownloadBase = "https://www.gojobs.go.kr"
	downloadMarker      = "fileDownload.do"
	downloadPath        = "/cmm/fileDownload.do"
)

// DownloadURL builds an absolute download URL for an attachment. Fragments
// already pointing at the download endpoint are prefixed with base; anything
// else is passed as a token query parameter. An empty fragment yields "".
func DownloadURL(base, filename, fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if base == "" {
		base = DefaultDownloadBase
	}
	base = strings.TrimRight(base, "/")

	if strings.HasPrefix(fragment, "http://") || strings.HasPrefix(fragment, "https://") {
		return fragment
	}
	if strings.Contains(fragment, downloadMarker) {
		return base + "/" + strings.TrimLeft(fragment, "/")
	}

	q := url.Values{}
	q.Set("fileNm", strings.TrimSpace(filename))
	q.Set("fileToken", fragment)
	return base + downloadPath + "?" + q.Encode()
}

// ParseSize parses an upstream file size. Invalid or negative values are 0.
func ParseSize(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// OriginalURL is the public gojobs.go.kr page of a posting.
func OriginalURL(id string) string {
	q := url.Values{}
	q.Set("empmnsn", strings.TrimSpace(id))
	return DefaultDownloadBase + "/apmView.do?" + q.Encode() + "&selMenuNo=400&menuNo=401&upperMenuNo="
}
