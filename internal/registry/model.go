// Package registry keeps the file records and their secondary indexes.
package registry

// Kind classifies an attachment as the messaging platform does.
type Kind string

const (
	KindDocument  Kind = "document"
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindVoice     Kind = "voice"
	KindAnimation Kind = "animation"
)

// Kinds enumerates every supported attachment kind. Dispatch tables and
// tests check themselves against this list so a new kind cannot silently
// fall through a default branch.
var Kinds = []Kind{
	KindDocument,
	KindPhoto,
	KindVideo,
	KindAudio,
	KindVoice,
	KindAnimation,
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}

	return false
}

// Attachment is the variant describing one uploaded file, carrying the
// kind tag plus the kind-specific fields the platform reports.
type Attachment struct {
	Kind       Kind   `bson:"kind" json:"kind"`
	FileHandle string `bson:"file_handle" json:"file_handle"`
	Caption    string `bson:"caption,omitempty" json:"caption,omitempty"`

	// document
	FileName string `bson:"file_name,omitempty" json:"file_name,omitempty"`
	MIME     string `bson:"mime,omitempty" json:"mime,omitempty"`
	// photo / video / animation
	Width  int `bson:"width,omitempty" json:"width,omitempty"`
	Height int `bson:"height,omitempty" json:"height,omitempty"`
	// video / audio / voice / animation
	Duration int `bson:"duration,omitempty" json:"duration,omitempty"`
	// audio
	Title string `bson:"title,omitempty" json:"title,omitempty"`
}

// FileRecord is one stored file reference. File bytes are never handled;
// FileHandle is an opaque identifier only the platform can resolve.
type FileRecord struct {
	ID             string `bson:"id" json:"id"`
	FileHandle     string `bson:"file_handle" json:"file_handle"`
	Kind           Kind   `bson:"kind" json:"kind"`
	Caption        string `bson:"caption,omitempty" json:"caption,omitempty"`
	OwnerID        int64  `bson:"owner_id" json:"owner_id"`
	Category       string `bson:"category" json:"category"`
	CreatedAt      int64  `bson:"created_at" json:"created_at"`
	AccessCount    int64  `bson:"access_count" json:"access_count"`
	LastAccessedAt *int64 `bson:"last_accessed_at,omitempty" json:"last_accessed_at,omitempty"`
}
