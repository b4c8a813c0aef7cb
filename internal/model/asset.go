package model

// AssetSnapshot is the ledger's view of a traced asset, as returned by
// the chaincode query. Read-only on this side.
type AssetSnapshot struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Owner          string         `json:"owner"`
	Artisan        string         `json:"artisan"`
	ArtisanID      string         `json:"artisanId"`
	MaterialSource string         `json:"materialSource"`
	CreateTime     int64          `json:"createTime"`
	CertHash       string         `json:"certHash"`
	ImageHash      string         `json:"imageHash"`
	History        []AssetHistory `json:"history"`
	Attributes     map[string]any `json:"attributes"`
}

// AssetHistory is one provenance event on the ledger.
type AssetHistory struct {
	Timestamp int64  `json:"timestamp"`
	Operation string `json:"operation"`
	From      string `json:"from"`
	To        string `json:"to"`
	Details   string `json:"details"`
}
