package model

// Document types.
const (
	TypeWord  = "word"
	TypeExcel = "excel"
)

// Verification states for generated sections.
const (
	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
)

// User is the authenticated (or freshly signed-up) account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Meta carries the server-managed bookkeeping of a document.
type Meta struct {
	Version       int      `json:"version"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
	SchemaVersion string   `json:"schema_version"`
	Sources       []string `json:"sources"`
}

// Section is one heading-plus-content node of a word document. Sections nest.
type Section struct {
	ID                 string    `json:"id"`
	Heading            string    `json:"heading"`
	Level              int       `json:"level"`
	Content            string    `json:"content"`
	VerificationStatus string    `json:"verification_status,omitempty"`
	Children           []Section `json:"children,omitempty"`
}

// Column describes one spreadsheet column.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Row maps column ids to scalar cell values.
type Row struct {
	ID    string         `json:"id"`
	Cells map[string]any `json:"cells"`
}

// Sheet is one tab of an excel document.
type Sheet struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Document is the authoritative in-memory document during an edit session.
// Mutations are always whole-object replacements; nothing hands out partial
// views that could be left half-applied.
type Document struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Meta     Meta      `json:"meta"`
	Sections []Section `json:"sections"`
	Sheets   []Sheet   `json:"sheets"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Meta.Sources = append([]string(nil), d.Meta.Sources...)
	out.Sections = cloneSections(d.Sections)
	out.Sheets = make([]Sheet, len(d.Sheets))
	for i, sh := range d.Sheets {
		out.Sheets[i] = sh
		out.Sheets[i].Columns = append([]Column(nil), sh.Columns...)
		out.Sheets[i].Rows = make([]Row, len(sh.Rows))
		for j, row := range sh.Rows {
			out.Sheets[i].Rows[j] = Row{ID: row.ID, Cells: make(map[string]any, len(row.Cells))}
			for k, v := range row.Cells {
				out.Sheets[i].Rows[j].Cells[k] = v
			}
		}
	}
	return &out
}

func cloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = s
		out[i].Children = cloneSections(s.Children)
	}
	return out
}

// FindSection walks the section tree and returns the section with the given
// id, or nil.
func (d *Document) FindSection(id string) *Section {
	return findSection(d.Sections, id)
}

func findSection(sections []Section, id string) *Section {
	for i := range sections {
		if sections[i].ID == id {
			return &sections[i]
		}
		if found := findSection(sections[i].Children, id); found != nil {
			return found
		}
	}
	return nil
}
