package domain

// RuleConfig is an extraction rule for pages of one origin
type RuleConfig struct {
	DateSelectors  []string `json:"date_selectors,omitempty"`
	DateRegex      string   `json:"date_regex,omitempty"`
	UseJSONLD      bool     `json:"use_json_ld"`
	UseDataLayer   bool     `json:"use_data_layer"`
	DataLayerVar   string   `json:"data_layer_var,omitempty"`
	TitleSelectors []string `json:"title_selectors,omitempty"`
}

// ExtractionResult is the outcome of testing an extraction rule against a single article.
// Error is set when the page could not be fetched or nothing was extracted.
type ExtractionResult struct {
	Date  string `json:"extracted_date,omitempty"`
	Title string `json:"extracted_title,omitempty"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether extraction failed
func (r ExtractionResult) Failed() bool {
	return r.Error != ""
}

// SpamReport is a persisted spam flag for an article url
type SpamReport struct {
	URL    string `db:"url" json:"url"`
	Origin string `db:"origin" json:"origin"`
	Title  string `db:"title" json:"title,omitempty"`
	Reason string `db:"reason" json:"reason,omitempty"`
}

// Empty reports whether the rule has nothing to apply
func (r RuleConfig) Empty() bool {
	return len(r.DateSelectors) == 0 && r.DateRegex == "" && !r.UseJSONLD && !r.UseDataLayer && len(r.TitleSelectors) == 0
}
