package session

import (
	"time"

	"github.com/fakeyudi/contractdesk/internal/compare"
)

// Mode decides how a session collects files and what it is used for.
type Mode string

const (
	ModeChat    Mode = "chat"
	ModeCompare Mode = "compare"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeChat, ModeCompare:
		return Mode(s), true
	}
	return "", false
}

// Status is the upload state shown to the user. It is never persisted.
type Status string

const (
	StatusDefault    Status = "default"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// MaxFiles is the number of documents one session may hold.
const MaxFiles = 2

// Texts shown in the conversation.
const (
	WelcomeMessage = "Welcome! Please upload your contract documents (PDF, DOC, DOCX, XLS, or XLSX format). " +
		"You can upload up to 2 contracts to compare and analyze. Once uploaded, feel free to ask me questions " +
		"about your contracts or compare them side-by-side."
	NewSessionMessage = "New session started with new files."
	ChatErrorMessage  = "Sorry, I encountered an error. Please try again."
)

// Session is one chat conversation or comparison run.
type Session struct {
	ID            string           `json:"id"`
	Mode          Mode             `json:"mode"`
	CreatedAt     time.Time        `json:"created_at"`
	Files         []UploadedFile   `json:"files"`
	FilesUploaded bool             `json:"files_uploaded"`
	Messages      []Message        `json:"messages"`
	Category      compare.Category `json:"category,omitempty"`
	Comparison    *compare.Result  `json:"comparison,omitempty"`
}

// UploadedFile is a document that reached storage. Only the stripped URL is
// kept; file content never is.
type UploadedFile struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	RemoteURL string `json:"remote_url"`
}

// Message is one entry of the conversation.
type Message struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FileURLs returns the remote URLs of the session's documents.
func (s *Session) FileURLs() []string {
	urls := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		urls = append(urls, f.RemoteURL)
	}
	return urls
}

// HasUploads reports whether at least one document reached storage.
func (s *Session) HasUploads() bool {
	return len(s.Files) > 0
}
