package request

// MediaVariations groups requests for the same underlying media at
// different sizes, allowing a cached rendition at another size to satisfy
// the request as a placeholder or final result.
type MediaVariations struct {
	mediaID string
	// forceRequestForSpecifiedURI prevents a variant from being used as
	// the final result even when it is big enough.
	forceRequestForSpecifiedURI bool
}

// VariationsForMediaID builds a MediaVariations from a single media id.
// The id must be unique per piece of media; two requests for the same
// picture at different sizes share the id.
func VariationsForMediaID(mediaID string) *MediaVariations {
	return &MediaVariations{mediaID: mediaID}
}

// ForcedVariationsForMediaID builds variations whose cached renditions
// may only serve as previews; the final result always comes from the
// request's own URI.
func ForcedVariationsForMediaID(mediaID string) *MediaVariations {
	return &MediaVariations{mediaID: mediaID, forceRequestForSpecifiedURI: true}
}

func (m *MediaVariations) MediaID() string {
	return m.mediaID
}

func (m *MediaVariations) ForceRequestForSpecifiedURI() bool {
	return m.forceRequestForSpecifiedURI
}
