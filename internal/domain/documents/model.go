package documents

import "io"

// Document is a file attached to a visit. FilePath is relative to the API
// origin, e.g. static/uploads/<uuid>_scan.pdf.
type Document struct {
	ID          int    `json:"id"`
	VisitID     int    `json:"visit_id"`
	PatientID   int    `json:"patient_id"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	Description string `json:"description"`
	UploadedAt  string `json:"uploaded_at"`
}

// Upload is one file selected for a visit. Content is read once.
type Upload struct {
	FileName    string
	Content     io.Reader
	Description string
}
