package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"

	"github.com/nvr-ai/go-overlay/util"
)

// DirSource replays the images of a directory in frame order.
type DirSource struct {
	dir   string
	files []util.ImageFile
	next  int
	// Loop restarts from the first image instead of returning io.EOF.
	Loop bool
}

// NewDirSource loads the image files of dir.
func NewDirSource(dir string) (*DirSource, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return &DirSource{dir: dir, files: files}, nil
}

// Read decodes the next image.
func (d *DirSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.files) {
		if !d.Loop {
			return nil, io.EOF
		}
		d.next = 0
	}
	f := d.files[d.next]
	d.next++

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", filepath.Base(f.Path))
	}
	return img, nil
}

// Name returns the directory path.
func (d *DirSource) Name() string {
	return d.dir
}

// Close releases nothing; the images are held in memory.
func (d *DirSource) Close() error {
	return nil
}
