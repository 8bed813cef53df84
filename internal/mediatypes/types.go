package mediatypes

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind is the coarse content classification of a file.
type Kind int

const (
	// KindGeneric is any file whose type is unknown or not mapped below.
	KindGeneric Kind = iota
	// KindImage represents image/* content.
	KindImage
	// KindVideo represents video/* content.
	KindVideo
	// KindAudio represents audio/* content.
	KindAudio
	// KindText represents text/* content.
	KindText
	// KindPDF represents application/pdf documents.
	KindPDF
)

// Schema strings stored on timeline entries.
const (
	SchemaFile     = "file"
	SchemaImage    = "file.image"
	SchemaVideo    = "file.video"
	SchemaAudio    = "file.audio"
	SchemaText     = "file.text"
	SchemaDocument = "file.document.pdf"
)

// MimeTypes maps lowercase file extensions to their MIME types. It is consulted
// before the platform table so that classification does not depend on the host.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/vnd.microsoft.icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".jxl":  "image/jxl",
	".dng":  "image/x-adobe-dng",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
	".pict": "image/pict",
	".pct":  "image/pict",
	".xcf":  "image/x-xcf",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".qt":   "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".mpe":  "video/mpeg",
	".3gp":  "video/3gpp",
	".mts":  "video/mp2t",
	".m2ts": "video/mp2t",
	".ts":   "video/mp2t",
	".ogv":  "video/ogg",

	// Audio
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/x-wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".aif":  "audio/x-aiff",
	".aiff": "audio/x-aiff",
	".wma":  "audio/x-ms-wma",
	".mid":  "audio/midi",
	".midi": "audio/midi",

	// Text
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".xml":  "text/xml",
	".vcf":  "text/vcard",
	".ics":  "text/calendar",

	// Documents
	".pdf":  "application/pdf",
	".json": "application/json",
	".zip":  "application/zip",
}

// GuessType returns the MIME type guessed from the path's extension, or "" when
// the extension is missing or unknown.
func GuessType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t, ok := MimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	return ""
}

// KindOf maps a MIME type to its Kind.
func KindOf(mimeType string) Kind {
	switch {
	case mimeType == "":
		return KindGeneric
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	case strings.HasPrefix(mimeType, "text/"):
		return KindText
	case mimeType == "application/pdf":
		return KindPDF
	}
	return KindGeneric
}

// Classify returns the Kind for a file path.
func Classify(path string) Kind {
	return KindOf(GuessType(path))
}

// Schema returns the dotted schema string for a file path.
func Schema(path string) string {
	return Classify(path).Schema()
}

// Schema returns the dotted schema string for the kind.
func (k Kind) Schema() string {
	switch k {
	case KindImage:
		return SchemaImage
	case KindVideo:
		return SchemaVideo
	case KindAudio:
		return SchemaAudio
	case KindText:
		return SchemaText
	case KindPDF:
		return SchemaDocument
	default:
		return SchemaFile
	}
}

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	default:
		return "generic"
	}
}

// KindFromSchema is the inverse of Kind.Schema. Unknown schemas map to KindGeneric.
func KindFromSchema(schema string) Kind {
	switch schema {
	case SchemaImage:
		return KindImage
	case SchemaVideo:
		return KindVideo
	case SchemaAudio:
		return KindAudio
	case SchemaText:
		return KindText
	case SchemaDocument:
		return KindPDF
	default:
		return KindGeneric
	}
}

// IsTimelineEligible reports whether a file belongs on the timeline: its
// guessed type must be image, video or audio.
func IsTimelineEligible(path string) bool {
	switch Classify(path) {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}
