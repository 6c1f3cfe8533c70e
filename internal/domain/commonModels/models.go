package commonModels

// Document is raw content before indexing.
type Document struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	DocType  DocType `json:"doc_type,omitempty"`
}

// Chunk is a bounded slice of a document. Vector is filled by the indexer.
type Chunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	SourceID string    `json:"source_id"`
	Vector   []float32 `json:"vector,omitempty"`
}

// Payload is what every stored point carries.
type Payload struct {
	Data   string `json:"data"`
	Source string `json:"source"`
}

type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type SearchHit struct {
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Location string

const (
	LocationLocal   Location = "local"
	LocationRemote  Location = "remote"
	LocationUnknown Location = "unknown"
)

type DocType string

var PDF DocType = "PDF"
var DOCX DocType = "DOCX"
var TXT DocType = "TXT"
var HTML DocType = "HTML"
var EMAIL DocType = "EMAIL"
var ERR DocType = "ERROR"
