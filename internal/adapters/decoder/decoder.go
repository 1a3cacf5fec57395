package decoder

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"strings"
	"sync"

	// Formats available to image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Amund211/asyncloader/internal/domain"
)

const AtlasPrefix = "atlas://"

// Decoder decodes images from files and from registered atlases.
//
// An atlas source has the form atlas://<atlas name>/<entry>, e.g.
// atlas://data/images/defaulttheme/image-missing.
type Decoder struct {
	mutex   sync.RWMutex
	atlases map[string]*Atlas
}

func New() *Decoder {
	d := &Decoder{
		atlases: make(map[string]*Atlas),
	}
	d.RegisterAtlas(DefaultThemeAtlasName, NewDefaultThemeAtlas())
	return d
}

func (d *Decoder) RegisterAtlas(name string, atlas *Atlas) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.atlases[name] = atlas
}

func (d *Decoder) Decode(ctx context.Context, source string, keepData bool, options domain.DecodeOptions) (*domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, source, err)
	}

	var decoded image.Image
	var err error
	if atlasPath, ok := strings.CutPrefix(source, AtlasPrefix); ok {
		decoded, err = d.decodeAtlas(atlasPath)
	} else {
		decoded, err = decodeFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, source, err)
	}

	img := &domain.Image{
		Source:  source,
		Bounds:  decoded.Bounds(),
		Mipmap:  options.Mipmap,
		NoCache: options.NoCache,
	}
	if keepData {
		img.Data = decoded
	}
	return img, nil
}

func (d *Decoder) decodeAtlas(atlasPath string) (image.Image, error) {
	name, entry := path.Split(atlasPath)
	name = strings.TrimSuffix(name, "/")

	d.mutex.RLock()
	atlas, ok := d.atlases[name]
	d.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("atlas %q not registered", name)
	}

	decoded, ok := atlas.Entry(entry)
	if !ok {
		return nil, fmt.Errorf("atlas %q has no entry %q", name, entry)
	}
	return decoded, nil
}

func decodeFile(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
