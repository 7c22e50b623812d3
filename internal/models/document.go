package models

// Document is the metadata stored for an ingested text.
// Documents are immutable once written; the corpus is append-only.
type Document struct {
	ID          string `json:"id"`          // doc:{owner}:{uuid}
	Title       string `json:"title"`       // Defaults to "uploaded-text"
	OwnerID     string `json:"userId"`      // Owner encoded in ID
	CreatedAt   int64  `json:"createdAt"`   // Unix milliseconds
	TextSnippet string `json:"textSnippet"` // Leading characters of the ingested text
}

// EmbeddingRecord holds the vector for a document, stored under emb:{id}.
// Every vector in a corpus has the same dimension.
type EmbeddingRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"embedding"`
}

// FileRecord is the metadata stored for a raw uploaded file
type FileRecord struct {
	ID          string `json:"id"` // file:{owner}/{ts}-{filename}
	Filename    string `json:"filename"`
	OwnerID     string `json:"userId"`
	CreatedAt   int64  `json:"createdAt"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	// DocumentIDs lists the chunk documents ingested from the file's text, if any
	DocumentIDs []string `json:"documentIds,omitempty"`
}

// UploadRequest is the JSON body accepted by the upload endpoint
type UploadRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// UploadResponse is returned with 201 after a successful upload
type UploadResponse struct {
	ID string `json:"id"`
}

// ListEntry is one row of the listing endpoint: either a Document or a FileRecord
type ListEntry interface{}

// DocumentList is the listing endpoint payload
type DocumentList struct {
	Docs []ListEntry `json:"docs"`
}
