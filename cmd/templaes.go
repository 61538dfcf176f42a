package cmd

// Template holds the web page templates of the serve command
type Template struct {

	// Summary page of the served manifest
	Index string

	// Directory listing page
	Tree string
}

// TemplateIndex is the data of the Index template
type TemplateIndex struct {
	Title string

	Version string

	// Commit time
	Date string

	// Input the manifest was built from
	Source string

	Label     string
	Files     int
	Dirs      int
	TotalSize string

	// Extracted files are served under /static/
	Static bool
}

// TemplatesFiles is the data of the Tree template
type TemplatesFiles struct {
	Title string

	Version string

	// Commit time
	Date string

	// URL of the parent directory (..)
	BackwardURL File

	FilesOrDir []File
}

// File is one row of a directory listing
type File struct {
	IsDir bool
	Name  string
	URL   string
	Size  string
	Date  string
	Attr  string
}
