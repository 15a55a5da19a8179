package model

// ResourceKind tags what a fetched resource holds and, once extracted,
// which ExtractedText fields are populated.
type ResourceKind string

const (
	ResourceKindPDF     ResourceKind = "pdf"
	ResourceKindText    ResourceKind = "text"
	ResourceKindCSV     ResourceKind = "csv"
	ResourceKindJSON    ResourceKind = "json"
	ResourceKindXLSX    ResourceKind = "xlsx"
	ResourceKindBinary  ResourceKind = "binary"
	ResourceKindUnknown ResourceKind = "unknown"
	ResourceKindError   ResourceKind = "error"
)

// IsText reports whether a file of this kind can be read as plain text.
func (k ResourceKind) IsText() bool {
	return k == ResourceKindText || k == ResourceKindCSV || k == ResourceKindJSON
}

type DescriptorSource string

const (
	DescriptorSourceEmbedded       DescriptorSource = "embedded"
	DescriptorSourceEmbeddedBase64 DescriptorSource = "embedded_base64"
	DescriptorSourceURL            DescriptorSource = "url"
)

// ResourceDescriptor is something the parser spotted on a page that may hold
// data for the question: a code block, an atob() payload or a link.
type ResourceDescriptor struct {
	Source  DescriptorSource `json:"type"`
	Content string           `json:"content,omitempty"`
	URL     string           `json:"url,omitempty"`
	Text    string           `json:"text,omitempty"`
}

// ResourceHandle points at a downloaded resource on local disk.
type ResourceHandle struct {
	Kind ResourceKind `json:"type"`
	Path string       `json:"path,omitempty"`
	URL  string       `json:"url,omitempty"`
}

type ExtractedText struct {
	Kind   ResourceKind `json:"type"`
	Text   string       `json:"text,omitempty"`
	Base64 string       `json:"b64,omitempty"`
	URL    string       `json:"url,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type ParsedPage struct {
	QuestionText string               `json:"question_text"`
	SubmitURL    string               `json:"submit_url,omitempty"`
	Resources    []ResourceDescriptor `json:"resources"`
}
