package bintype

// Artifact identifies one of the three files that make up a bin.
type Artifact uint8

const (
	ArtifactHeader Artifact = iota
	ArtifactTable
	ArtifactBlob
)

// String returns the conventional file extension name of the artifact.
func (a Artifact) String() string {
	switch a {
	case ArtifactHeader:
		return "hdr"
	case ArtifactTable:
		return "adc"
	case ArtifactBlob:
		return "roi"
	default:
		return "unknown"
	}
}

// Ext returns the file extension, including the leading dot.
func (a Artifact) Ext() string {
	return "." + a.String()
}
