package models

import "time"

// PageKey identifies a managed static page.
type PageKey string

const (
	PageHome        PageKey = "home"
	PageAbout       PageKey = "about"
	PageContact     PageKey = "contact"
	PageModulesList PageKey = "modules_list"
)

var pageLabels = map[PageKey]string{
	PageHome:        "Home Page",
	PageAbout:       "About Us",
	PageContact:     "Contact Us",
	PageModulesList: "Modules List",
}

// Label returns the display name for the page key.
func (k PageKey) Label() string {
	if label, ok := pageLabels[k]; ok {
		return label
	}
	return string(k)
}

// Valid reports whether the key names a managed page.
func (k PageKey) Valid() bool {
	_, ok := pageLabels[k]
	return ok
}

// PageContent holds the editable content of a static page.
type PageContent struct {
	ID        string    `db:"id" json:"id"`
	PageKey   PageKey   `db:"page_key" json:"page_key"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
