package domain

type Employer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Candidate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Headline  string `json:"headline,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Job struct {
	ID         string `json:"id"`
	EmployerID string `json:"employer_id"`
	Title      string `json:"title"`
	Status     string `json:"status" enum:"open,closed"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Application struct {
	ID                 string   `json:"id"`
	JobID              string   `json:"job_id"`
	CandidateID        string   `json:"candidate_id"`
	Status             Status   `json:"status"`
	MatchScore         *float64 `json:"match_score,omitempty"`
	ViewedByEmployerAt *string  `json:"viewed_by_employer_at,omitempty" format:"date-time"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
}

// StatusHistoryEntry records one status change. Entries are write-once;
// FromStatus is nil only for the initial APPLIED entry.
type StatusHistoryEntry struct {
	ID            int64   `json:"id"`
	ApplicationID string  `json:"application_id"`
	FromStatus    *Status `json:"from_status,omitempty"`
	ToStatus      Status  `json:"to_status"`
	Note          string  `json:"note,omitempty"`
	ChangedBy     Actor   `json:"changed_by"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type ActivityEntry struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	Actor         Actor  `json:"actor"`
	EmployerID    string `json:"employer_id"`
	CandidateID   string `json:"candidate_id"`
	JobID         string `json:"job_id"`
	ApplicationID string `json:"application_id,omitempty"`
	Details       string `json:"details_json"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Activity types emitted by the lifecycle engine.
const (
	ActivityApplicationSubmitted     = "APPLICATION_SUBMITTED"
	ActivityApplicationViewed        = "APPLICATION_VIEWED"
	ActivityApplicationStatusChanged = "APPLICATION_STATUS_CHANGED"
)

type Conversation struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	EmployerID  string `json:"employer_id"`
	CandidateID string `json:"candidate_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SenderID       string  `json:"sender_id"`
	ReceiverID     string  `json:"receiver_id"`
	Body           string  `json:"body"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ReadAt         *string `json:"read_at,omitempty" format:"date-time"`
}

type Skill struct {
	ID          int64  `json:"id"`
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Level       string `json:"level,omitempty"`
}

type Experience struct {
	ID          int64  `json:"id"`
	CandidateID string `json:"candidate_id"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type Education struct {
	ID          int64  `json:"id"`
	CandidateID string `json:"candidate_id"`
	School      string `json:"school"`
	Degree      string `json:"degree,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type Certification struct {
	ID          int64  `json:"id"`
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Issuer      string `json:"issuer,omitempty"`
	IssuedAt    string `json:"issued_at,omitempty"`
}

type Document struct {
	ID          int64  `json:"id"`
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	UploadedAt  string `json:"uploaded_at" format:"date-time"`
}

// Profile is the nested candidate projection returned by the application
// read model.
type Profile struct {
	Skills         []Skill         `json:"skills"`
	Experience     []Experience    `json:"experience"`
	Education      []Education     `json:"education"`
	Certifications []Certification `json:"certifications"`
	Documents      []Document      `json:"documents"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
