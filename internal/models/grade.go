package models

// Grade is an academic year level.
type Grade struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Seq  int64  `json:"seq"`
}
