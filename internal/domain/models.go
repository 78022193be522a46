package domain

import "time"

const (
	FormatMarkdown = "markdown"
	FormatLatex    = "latex"
)

// SessionFile is one uploaded (or derived) document tracked by a session.
type SessionFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Path         string `json:"path"`
	Format       string `json:"format"`
	UploadedAt   int64  `json:"uploadedAt"`
	Status       string `json:"status"`
	RefinedFrom  string `json:"refinedFrom,omitempty"`
	EnhancedFrom string `json:"enhancedFrom,omitempty"`
	JournalStyle string `json:"journalStyle,omitempty"`
	PDFPath      string `json:"pdfPath,omitempty"`
}

type Session struct {
	ID               string            `json:"id"`
	CreatedAt        int64             `json:"createdAt"`
	Files            []SessionFile     `json:"files"`
	Analyses         map[string]string `json:"analyses,omitempty"`
	Recommendations  string            `json:"recommendations,omitempty"`
	DismissedUpdates []string          `json:"dismissedUpdates"`
}

// ConversionOptions controls which pipeline stages run for one request.
type ConversionOptions struct {
	JournalStyle    string `json:"journalStyle,omitempty"`
	JournalTemplate string `json:"journalTemplate,omitempty"`
	UseOverleaf     bool   `json:"useOverleaf"`
	SendEmail       bool   `json:"sendEmail"`
	TriggerWebhook  bool   `json:"triggerWebhook"`
	EmailRecipient  string `json:"emailRecipient,omitempty"`
}

// ConversionRequest is one immutable invocation of the pipeline.
type ConversionRequest struct {
	ID        string
	SessionID string
	Filename  string
	Path      string
	Format    string
	Options   ConversionOptions
}

const (
	JobStateQueued     = "queued"
	JobStateProcessing = "processing"
	JobStateCompleted  = "completed"
	JobStateFailed     = "failed"
)

// Job is the mutable lifecycle record for one conversion request. It is
// owned by the status tracker and mutated only through transitions.
type Job struct {
	RequestID    string   `json:"requestId"`
	SessionID    string   `json:"sessionId"`
	Filename     string   `json:"filename"`
	State        string   `json:"state"`
	Message      string   `json:"message"`
	ArtifactPath string   `json:"pdfPath,omitempty"`
	ErrorDetail  string   `json:"error,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
	CompletedAt  int64    `json:"completedAt,omitempty"`
}

// RenderedArtifact is the output of a successful render.
type RenderedArtifact struct {
	Path        string
	Format      string
	RenderPath  string // "pandoc" or "overleaf"
	GeneratedAt time.Time
}

// ConversionMetadata travels with webhook notifications.
type ConversionMetadata struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	FileType   string `json:"file_type"`
	RenderPath string `json:"conversion_method"`
	Timestamp  string `json:"timestamp"`
}

// DeliveryReport records the best-effort distribution sub-operations.
// Warnings never change a job's terminal state.
type DeliveryReport struct {
	EmailSent      bool
	EmailWarning   string
	WebhookSent    bool
	WebhookWarning string
}

func (r DeliveryReport) WarningList() []string {
	var warnings []string
	if r.EmailWarning != "" {
		warnings = append(warnings, r.EmailWarning)
	}
	if r.WebhookWarning != "" {
		warnings = append(warnings, r.WebhookWarning)
	}
	return warnings
}

type UpdateNotification struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Dismissible bool   `json:"dismissible"`
}

var UpdateNotifications = []UpdateNotification{
	{
		ID:          "v1.1.0",
		Title:       "Enhanced File Processing",
		Message:     "Improved file upload and conversion processing with better error handling and status updates.",
		Type:        "success",
		Date:        "25-10-2025",
		Dismissible: true,
	},
	{
		ID:          "v1.0.0",
		Title:       "Initial Release",
		Message:     "Welcome to the PDF Agent! Convert LaTeX and Markdown files to PDF with advanced formatting options.",
		Type:        "info",
		Date:        "13-10-2025",
		Dismissible: false,
	},
}
