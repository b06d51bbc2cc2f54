package model

// IntentSection is one section sketched by the intent parser for a word
// document.
type IntentSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Intent is the structured generation plan the backend derives from a natural
// language prompt. Word documents come back with Sections, excel documents
// with Columns and SampleData keyed by column name.
type Intent struct {
	DocumentType string           `json:"document_type"`
	Topic        string           `json:"topic"`
	Tone         string           `json:"tone"`
	Sections     []IntentSection  `json:"sections"`
	Columns      []string         `json:"columns"`
	SampleData   []map[string]any `json:"sample_data"`
}
