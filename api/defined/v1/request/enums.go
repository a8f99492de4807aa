package request

// Priority controls scheduling of a request inside the pipeline.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

// RequestLevel is the lowest pipeline stage that is permitted to satisfy a
// request. A request with LevelFullFetch may be answered from any stage; a
// request with LevelBitmapMemoryCache must be answered from the bitmap
// memory cache or not at all.
type RequestLevel int

const (
	LevelFullFetch RequestLevel = iota + 1
	LevelDiskCache
	LevelEncodedMemoryCache
	LevelBitmapMemoryCache
)

func (l RequestLevel) String() string {
	switch l {
	case LevelFullFetch:
		return "full-fetch"
	case LevelDiskCache:
		return "disk-cache"
	case LevelEncodedMemoryCache:
		return "encoded-memory-cache"
	case LevelBitmapMemoryCache:
		return "bitmap-memory-cache"
	}
	return "unknown"
}

// Max returns the more restrictive of the two levels.
func (l RequestLevel) Max(other RequestLevel) RequestLevel {
	if other > l {
		return other
	}
	return l
}

// CacheChoice selects which cache the downstream machinery files the image
// under. Small images (icons, thumbnails) go to a dedicated cache so they
// are not evicted by large content images.
type CacheChoice int

const (
	CacheChoiceDefault CacheChoice = iota
	CacheChoiceSmall
)

func (c CacheChoice) String() string {
	if c == CacheChoiceSmall {
		return "small"
	}
	return "default"
}
