package arena

import "time"

// Record is the stored metadata for one published artifact.
type Record struct {
	// Key is the hashed namespace identity.
	Key string `json:"key"`

	// Revision is the resolved source commit the artifact was built from.
	Revision string `json:"revision"`

	// Profile is the full fingerprint of the toolchain profile.
	Profile string `json:"profile"`

	// Stage names the pipeline stage that published the artifact.
	Stage string `json:"stage"`

	// CreatedAt is when the record was published (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Files lists the payload files, relative to the payload directory.
	Files []string `json:"files"`

	// TotalSize is the payload size in bytes.
	TotalSize int64 `json:"total_size"`
}
