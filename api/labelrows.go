package api

import "net/url"

// LabelRowMetadata is the listing entry for one label row. The full
// annotation payload is fetched separately by label hash.
type LabelRowMetadata struct {
	LabelHash    string `json:"label_hash"`
	BranchName   string `json:"branch_name"`
	DataHash     string `json:"data_hash"`
	DataTitle    string `json:"data_title"`
	DataType     string `json:"data_type"`
	DatasetHash  string `json:"dataset_hash"`
	DatasetTitle string `json:"dataset_title"`
	LabelStatus  string `json:"label_status"`
	CreatedAt    string `json:"created_at,omitempty"`
	LastEditedAt string `json:"last_edited_at,omitempty"`
}

// ListLabelRowsParams filter a label-row listing. Zero values mean no
// filtering.
type ListLabelRowsParams struct {
	// DatasetHash restricts the listing to one dataset.
	DatasetHash string

	// LabelStatus restricts the listing to rows in the given status.
	LabelStatus string

	Page PageParams
}

// Query renders the listing parameters as URL query values.
func (p ListLabelRowsParams) Query() url.Values {
	v := p.Page.Query()
	if p.DatasetHash != "" {
		v.Set("dataset_hash", p.DatasetHash)
	}
	if p.LabelStatus != "" {
		v.Set("label_status", p.LabelStatus)
	}
	return v
}

// LabelRowPage is one page of a label-row listing.
type LabelRowPage struct {
	Rows []LabelRowMetadata `json:"results"`
	Page PageInfo           `json:"page"`
}

// SaveLabelRowResult acknowledges a saved label row.
type SaveLabelRowResult struct {
	LabelHash   string `json:"label_hash"`
	LabelStatus string `json:"label_status"`
	SavedAt     string `json:"saved_at,omitempty"`
}
