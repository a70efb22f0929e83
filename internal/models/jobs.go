package models

import "time"

// JobStatus is the lifecycle state of a [SyncJob].
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobRetrying   JobStatus = "retrying"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobRetrying, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Reference data keys understood by the sync handlers.
const (
	RefTicketmasterID = "ticketmaster_id"
	RefSpotifyID      = "spotify_id"
	RefMBID           = "mbid"
	RefSetlistFMID    = "setlistfm_id"
	RefArtistID       = "artist_id"
	RefName           = "name"
	RefMode           = "mode"
	RefForce          = "force"
	RefDepth          = "depth"

	// ModeCatalog marks a song job whose entity ID is an artist's Spotify ID.
	ModeCatalog = "catalog"
)

// JobError is the structured last_error payload.
type JobError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncJob is one durable unit of sync work for a single entity.
type SyncJob struct {
	ID              string         `json:"id"`
	EntityType      EntityType     `json:"entityType"`
	EntityID        string         `json:"entityId"`
	ReferenceData   map[string]any `json:"referenceData,omitempty"`
	Status          JobStatus      `json:"status"`
	Priority        int            `json:"priority"`
	Attempts        int            `json:"attempts"`
	MaxAttempts     int            `json:"maxAttempts"`
	LastAttemptedAt *time.Time     `json:"lastAttemptedAt,omitempty"`
	LastError       *JobError      `json:"lastError,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	ProcessedAt     *time.Time     `json:"processedAt,omitempty"`
}

// Ref returns reference data key as a string, or "" when absent or not a string.
func (j *SyncJob) Ref(key string) string {
	if j == nil || j.ReferenceData == nil {
		return ""
	}
	v, _ := j.ReferenceData[key].(string)
	return v
}

// RefBool returns reference data key as a bool.
func (j *SyncJob) RefBool(key string) bool {
	if j == nil || j.ReferenceData == nil {
		return false
	}
	v, _ := j.ReferenceData[key].(bool)
	return v
}

// EnqueueRequest describes a job to add to the queue.
//
// Zero Priority and MaxAttempts take the queue defaults.
type EnqueueRequest struct {
	EntityType    EntityType     `json:"entityType" validate:"required,oneof=artist venue show setlist song"`
	EntityID      string         `json:"entityId" validate:"required,max=255"`
	ReferenceData map[string]any `json:"referenceData,omitempty"`
	Priority      int            `json:"priority,omitempty" validate:"gte=0,lte=10"`
	MaxAttempts   int            `json:"maxAttempts,omitempty" validate:"gte=0,lte=20"`
}

// JobFilter narrows a job listing. Empty fields match everything.
type JobFilter struct {
	Status     JobStatus
	EntityType EntityType
	Limit      int
}

// QueueStats counts jobs by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total is the number of jobs across every status.
func (s QueueStats) Total() int {
	return s.Pending + s.Processing + s.Retrying + s.Completed + s.Failed
}

// Set records n jobs for status.
func (s *QueueStats) Set(status JobStatus, n int) {
	switch status {
	case JobPending:
		s.Pending = n
	case JobProcessing:
		s.Processing = n
	case JobRetrying:
		s.Retrying = n
	case JobCompleted:
		s.Completed = n
	case JobFailed:
		s.Failed = n
	}
}
