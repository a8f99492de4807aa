package uriutil

import (
	"net/url"
	"strconv"
)

// URI schemes understood by the pipeline.
const (
	SchemeHTTP     = "http"
	SchemeHTTPS    = "https"
	SchemeFile     = "file"
	SchemeResource = "res"
	SchemeAsset    = "asset"
	SchemeData     = "data"
)

// IsNetworkURI reports whether the URI points at a remote HTTP(S) source.
func IsNetworkURI(uri *url.URL) bool {
	if uri == nil {
		return false
	}
	return uri.Scheme == SchemeHTTP || uri.Scheme == SchemeHTTPS
}

// IsLocalFileURI reports whether the URI points at a file on local disk.
func IsLocalFileURI(uri *url.URL) bool {
	return uri != nil && uri.Scheme == SchemeFile
}

// IsLocalResourceURI reports whether the URI references a packaged resource
// by its numeric id, e.g. res:///1024.
func IsLocalResourceURI(uri *url.URL) bool {
	return uri != nil && uri.Scheme == SchemeResource
}

// IsLocalAssetURI reports whether the URI references a bundled asset by its
// path inside the asset folder.
func IsLocalAssetURI(uri *url.URL) bool {
	return uri != nil && uri.Scheme == SchemeAsset
}

// IsDataURI reports whether the URI embeds its payload inline.
func IsDataURI(uri *url.URL) bool {
	return uri != nil && uri.Scheme == SchemeData
}

// IsLocalURI reports whether the URI resolves without network I/O.
func IsLocalURI(uri *url.URL) bool {
	return IsLocalFileURI(uri) || IsLocalResourceURI(uri) ||
		IsLocalAssetURI(uri) || IsDataURI(uri)
}

// URIForResourceID synthesizes the canonical URI for a packaged resource id.
func URIForResourceID(id int) *url.URL {
	return &url.URL{
		Scheme: SchemeResource,
		Path:   "/" + strconv.Itoa(id),
	}
}
