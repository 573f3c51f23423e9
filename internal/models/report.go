package models

// Resolution maps every queried key to the vault documents that mention it.
// Keys whose query failed map to an empty list and have an entry in Failures.
type Resolution struct {
	Documents map[string][]string
	Failures  map[string]error
}

// NewResolution creates an empty resolution
func NewResolution() *Resolution {
	return &Resolution{
		Documents: make(map[string][]string),
		Failures:  make(map[string]error),
	}
}

// Lookup returns the document names for key
func (r *Resolution) Lookup(key string) []string {
	if r == nil {
		return nil
	}
	return r.Documents[key]
}

// Tag is a provenance tag generated for an entry
type Tag struct {
	Name string  `json:"name"`
	Type TagType `json:"type"`
}

// Report is the output of one cross-reference run
type Report struct {
	Text        string            `json:"report"`
	Order       []EntryID         `json:"-"`
	TagsByEntry map[EntryID][]Tag `json:"tags"`
}

// Profile is one configured Obsidian vault
type Profile struct {
	Name    string `json:"name" yaml:"-"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Token   string `json:"-" yaml:"token"`
}
