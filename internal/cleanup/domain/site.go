package domain

type SiteInfo struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ScanTemplateID string `json:"scan_template_id"`
}
