package cameracanny

import (
	"fmt"

	"github.com/e7canasta/camera-canny/internal/pgm"
)

// PGMWriter saves rasters as binary P5 graymaps.
type PGMWriter struct{}

// WritePGM writes g to path, replacing any existing file.
func (PGMWriter) WritePGM(path string, g *Gray) error {
	if g.Released() {
		return fmt.Errorf("pgm: raster for %s has been released", path)
	}
	return pgm.WriteFile(path, g.Width, g.Height, g.Pix)
}
