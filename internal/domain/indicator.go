package domain

// Indicator is one typed value submitted for annotation.
type Indicator struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	// ToIDS marks the indicator as used for detection.
	ToIDS bool `json:"to_ids"`
}

// Match records a warninglist hit for an indicator.
type Match struct {
	ListID   uint   `json:"warninglist_id"`
	ListName string `json:"warninglist_name"`
	// Entry is the list entry that matched.
	Entry string `json:"match"`
	// Value is the part of the indicator value that matched.
	Value string `json:"value"`
}
