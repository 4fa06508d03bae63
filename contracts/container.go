package contracts

// DirectoryLayout tells the container how payloads of a directory are cut.
type DirectoryLayout int

const (
	LayoutTiled DirectoryLayout = iota
	LayoutStriped
)

// Directory holds the tag set of one pyramid layer.
type Directory struct {
	Width        int
	Height       int
	Layout       DirectoryLayout
	TileWidth    int // tiled only
	TileHeight   int // tiled only
	RowsPerStrip int // striped only
	Quality      *int
	Description  string
}

// ContainerWriter persists directories. SetDirectory must precede the
// payload writes of a directory and WriteDirectory commits it.
type ContainerWriter interface {
	SetDirectory(dir Directory) error
	WriteEncodedTile(index int, data []byte) error
	WriteEncodedStrip(index int, data []byte) error
	WriteDirectory() error
	Close() error
}

// OpenFunc opens a container at path for writing.
type OpenFunc func(path string) (ContainerWriter, error)
