package ffmpeg

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// templateFile is the on-disk render template: a list of compositions whose
// output settings override the engine defaults.
type templateFile struct {
	Compositions []templateComposition `toml:"composition"`
}

type templateComposition struct {
	Name        string `toml:"name"`
	VideoCodec  string `toml:"video_codec"`
	CRF         *int   `toml:"crf"`
	Preset      string `toml:"preset"`
	PixelFormat string `toml:"pixel_format"`
}

func loadTemplate(path string) (templateFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return templateFile{}, fmt.Errorf("open template: %w", err)
	}
	defer file.Close()

	var tmpl templateFile
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&tmpl); err != nil {
		return templateFile{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	return tmpl, nil
}
