package api

// maxQuestionBytes caps the size of a submitted question. Anything larger
// is almost certainly a pasted document that belongs in project context.
const maxQuestionBytes = 64 * 1024

// SubmitConsultationRequest is the HTTP request body for POST /api/v1/consultations.
type SubmitConsultationRequest struct {
	Question    string         `json:"question"`
	ProjectPath string         `json:"project_path,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}
