package homepage

// Homepage's YAML files share one outer shape: a list of single-key maps
// (group name) holding a list of single-key maps (entry name). Only the
// value differs:
//
//	services.yaml:  - Group: [ - Name: {href: ..., icon: ...} ]
//	bookmarks.yaml: - Group: [ - Name: [ {href: ..., abbr: ...} ] ]
//
// Both are decoded through yaml.Node so one file may mix them.

// ServiceProps is the value of a services.yaml entry.
type ServiceProps struct {
	Href        string `yaml:"href"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// BookmarkEntry is one element of a bookmarks.yaml entry's list.
type BookmarkEntry struct {
	Icon string `yaml:"icon"`
	Abbr string `yaml:"abbr"`
	Href string `yaml:"href"`
}

// Draft is a bookmark ready to be created: the server assigns the rest.
type Draft struct {
	URL   string
	Title string
	Group string
}
