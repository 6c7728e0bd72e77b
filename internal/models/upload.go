package models

// UploadedFile holds the raw bytes of one upload. It lives only for the
// request that received it and is never written to disk.
type UploadedFile struct {
	Name string `json:"name"`
	Ext  string `json:"ext"` // lower-case, with leading dot
	Size int64  `json:"size"`
	Data []byte `json:"-"`
}
