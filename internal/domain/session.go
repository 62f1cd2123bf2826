package domain

// Session is the authenticated identity pushed in by the session
// provider. A nil *Session means local-only mode.
type Session struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}
