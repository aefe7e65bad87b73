package stage

// Source is the input handed to the first executed stage of a fresh job.
type Source struct {
	JobID     string `json:"jobId"`
	Workspace string `json:"workspace"`
	// Key is the storage key of the uploaded media.
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
}
