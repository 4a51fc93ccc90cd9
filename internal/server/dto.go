package server

import (
	"encoding/json"

	"hireline/internal/domain"
)

// Request payloads

type CreateEmployerRequest struct {
	Name string `json:"name"`
}

type ProfileSkillRequest struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

type ProfileExperienceRequest struct {
	Company   string `json:"company"`
	Title     string `json:"title"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type ProfileEducationRequest struct {
	School    string `json:"school"`
	Degree    string `json:"degree,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type ProfileCertificationRequest struct {
	Name     string `json:"name"`
	Issuer   string `json:"issuer,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

type ProfileDocumentRequest struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	UploadedAt string `json:"uploaded_at,omitempty" format:"date-time"`
}

type CreateCandidateRequest struct {
	Name           string                        `json:"name"`
	Headline       string                        `json:"headline,omitempty"`
	Skills         []ProfileSkillRequest         `json:"skills,omitempty"`
	Experience     []ProfileExperienceRequest    `json:"experience,omitempty"`
	Education      []ProfileEducationRequest     `json:"education,omitempty"`
	Certifications []ProfileCertificationRequest `json:"certifications,omitempty"`
	Documents      []ProfileDocumentRequest      `json:"documents,omitempty"`
}

type CreateJobRequest struct {
	EmployerID string `json:"employer_id"`
	Title      string `json:"title"`
}

type SubmitApplicationRequest struct {
	CandidateID string   `json:"candidate_id"`
	MatchScore  *float64 `json:"match_score,omitempty" minimum:"0" maximum:"1"`
}

type UpdateApplicationRequest struct {
	ToStatus   *string `json:"to_status,omitempty"`
	Note       string  `json:"note,omitempty"`
	MarkViewed *bool   `json:"mark_viewed,omitempty"`
}

type StartConversationRequest struct {
	JobID       string `json:"job_id"`
	EmployerID  string `json:"employer_id,omitempty"`
	CandidateID string `json:"candidate_id"`
}

// Response payloads

type ApplicationResponse struct {
	ID                 string   `json:"id"`
	JobID              string   `json:"job_id"`
	CandidateID        string   `json:"candidate_id"`
	Status             string   `json:"status"`
	MatchScore         *float64 `json:"match_score,omitempty"`
	ViewedByEmployerAt *string  `json:"viewed_by_employer_at,omitempty" format:"date-time"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
}

type StatusHistoryResponse struct {
	ID            int64   `json:"id"`
	ApplicationID string  `json:"application_id"`
	FromStatus    *string `json:"from_status,omitempty"`
	ToStatus      string  `json:"to_status"`
	Note          string  `json:"note,omitempty"`
	ChangedBy     string  `json:"changed_by"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type ActivityResponse struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Actor         string         `json:"actor"`
	EmployerID    string         `json:"employer_id"`
	CandidateID   string         `json:"candidate_id"`
	JobID         string         `json:"job_id"`
	ApplicationID string         `json:"application_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
}

// ApplicationDetailResponse is the application read model: the row, the
// candidate's profile, and the full ledger most recent first.
type ApplicationDetailResponse struct {
	Application ApplicationResponse     `json:"application"`
	Candidate   domain.Candidate        `json:"candidate"`
	Profile     domain.Profile          `json:"profile"`
	History     []StatusHistoryResponse `json:"history"`
}

type ConversationResponse struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	EmployerID  string `json:"employer_id"`
	CandidateID string `json:"candidate_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ConversationDetailResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []domain.Message     `json:"messages"`
}

func applicationResponse(a domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:                 a.ID,
		JobID:              a.JobID,
		CandidateID:        a.CandidateID,
		Status:             string(a.Status),
		MatchScore:         a.MatchScore,
		ViewedByEmployerAt: a.ViewedByEmployerAt,
		CreatedAt:          a.CreatedAt,
	}
}

func mapApplications(items []domain.Application) []ApplicationResponse {
	res := make([]ApplicationResponse, 0, len(items))
	for _, a := range items {
		res = append(res, applicationResponse(a))
	}
	return res
}

func historyResponse(e domain.StatusHistoryEntry) StatusHistoryResponse {
	var from *string
	if e.FromStatus != nil {
		s := string(*e.FromStatus)
		from = &s
	}
	return StatusHistoryResponse{
		ID:            e.ID,
		ApplicationID: e.ApplicationID,
		FromStatus:    from,
		ToStatus:      string(e.ToStatus),
		Note:          e.Note,
		ChangedBy:     e.ChangedBy.String(),
		CreatedAt:     e.CreatedAt,
	}
}

func mapHistory(items []domain.StatusHistoryEntry) []StatusHistoryResponse {
	res := make([]StatusHistoryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, historyResponse(e))
	}
	return res
}

func activityResponse(e domain.ActivityEntry) ActivityResponse {
	var details map[string]any
	if e.Details != "" {
		_ = json.Unmarshal([]byte(e.Details), &details)
	}
	return ActivityResponse{
		ID:            e.ID,
		Type:          e.Type,
		Actor:         e.Actor.String(),
		EmployerID:    e.EmployerID,
		CandidateID:   e.CandidateID,
		JobID:         e.JobID,
		ApplicationID: e.ApplicationID,
		Details:       details,
		CreatedAt:     e.CreatedAt,
	}
}

func mapActivity(items []domain.ActivityEntry) []ActivityResponse {
	res := make([]ActivityResponse, 0, len(items))
	for _, e := range items {
		res = append(res, activityResponse(e))
	}
	return res
}

func conversationResponse(c domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:          c.ID,
		JobID:       c.JobID,
		EmployerID:  c.EmployerID,
		CandidateID: c.CandidateID,
		CreatedAt:   c.CreatedAt,
	}
}

func profileRequestToDomain(req CreateCandidateRequest) domain.Profile {
	var p domain.Profile
	for _, s := range req.Skills {
		p.Skills = append(p.Skills, domain.Skill{Name: s.Name, Level: s.Level})
	}
	for _, e := range req.Experience {
		p.Experience = append(p.Experience, domain.Experience{
			Company: e.Company, Title: e.Title, StartDate: e.StartDate, EndDate: e.EndDate,
		})
	}
	for _, e := range req.Education {
		p.Education = append(p.Education, domain.Education{
			School: e.School, Degree: e.Degree, StartDate: e.StartDate, EndDate: e.EndDate,
		})
	}
	for _, c := range req.Certifications {
		p.Certifications = append(p.Certifications, domain.Certification{
			Name: c.Name, Issuer: c.Issuer, IssuedAt: c.IssuedAt,
		})
	}
	for _, d := range req.Documents {
		p.Documents = append(p.Documents, domain.Document{
			Name: d.Name, URL: d.URL, UploadedAt: d.UploadedAt,
		})
	}
	return p
}
