package vision

import (
	"fmt"
	"image"
	"log/slog"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/internal/edgeparams"
	"gocv.io/x/gocv"
)

// Processor converts frames to grayscale and detects edges with OpenCV.
// It holds no state; one value may serve several runners.
type Processor struct{}

// NewProcessor returns a Processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ToGray converts a packed BGR frame to an 8-bit grayscale raster.
func (p *Processor) ToGray(f *cameracanny.Frame) (*cameracanny.Gray, error) {
	if f == nil {
		return nil, fmt.Errorf("vision: nil frame")
	}
	n := f.Width * f.Height * 3
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < n {
		return nil, fmt.Errorf("vision: frame %dx%d carries %d bytes, need %d", f.Width, f.Height, len(f.Data), n)
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:n])
	if err != nil {
		return nil, fmt.Errorf("vision: failed to wrap frame: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	return grayFromMat(gray)
}

// Detect runs Canny on g and returns a new raster with edges at 0 and
// background at 255. g is not modified.
func (p *Processor) Detect(g *cameracanny.Gray, params cameracanny.EdgeParams) (*cameracanny.Gray, error) {
	if g.Released() {
		return nil, fmt.Errorf("vision: input raster already released")
	}
	if g.Width <= 0 || g.Height <= 0 || len(g.Pix) < g.Width*g.Height {
		return nil, fmt.Errorf("vision: invalid raster %dx%d with %d bytes", g.Width, g.Height, len(g.Pix))
	}
	if params.Sigma <= 0 {
		return nil, fmt.Errorf("vision: sigma must be > 0, got %v", params.Sigma)
	}

	src, err := gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8UC1, g.Pix[:g.Width*g.Height])
	if err != nil {
		return nil, fmt.Errorf("vision: failed to wrap raster: %w", err)
	}
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := edgeparams.KernelSize(params.Sigma)
	gocv.GaussianBlur(src, &blurred, image.Pt(k, k), params.Sigma, params.Sigma, gocv.BorderDefault)

	low, high, err := thresholds(blurred, params)
	if err != nil {
		return nil, err
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, cannyThreshold(low), cannyThreshold(high))

	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(edges, &inverted)

	slog.Debug("vision: edges detected",
		"width", g.Width,
		"height", g.Height,
		"kernel", k,
		"low", low,
		"high", high,
	)

	return grayFromMat(inverted)
}

// thresholds derives the hysteresis pair from the Sobel gradient of the
// smoothed image.
func thresholds(blurred gocv.Mat, params cameracanny.EdgeParams) (low, high int, err error) {
	dx := gocv.NewMat()
	defer dx.Close()
	dy := gocv.NewMat()
	defer dy.Close()

	gocv.Sobel(blurred, &dx, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(blurred, &dy, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	dxv, err := dx.DataPtrInt16()
	if err != nil {
		return 0, 0, fmt.Errorf("vision: reading x gradient: %w", err)
	}
	dyv, err := dy.DataPtrInt16()
	if err != nil {
		return 0, 0, fmt.Errorf("vision: reading y gradient: %w", err)
	}

	low, high, err = edgeparams.Derive(edgeparams.Gradient{
		Width:  blurred.Cols(),
		Height: blurred.Rows(),
		DX:     dxv,
		DY:     dyv,
	}, params.TLow, params.THigh)
	if err != nil {
		return 0, 0, fmt.Errorf("vision: deriving thresholds: %w", err)
	}
	return low, high, nil
}

// cannyThreshold maps an inclusive integer threshold onto cv::Canny, which
// keeps magnitudes strictly above the value it is given.
func cannyThreshold(v int) float32 {
	if v <= 0 {
		return 0
	}
	return float32(v) - 0.5
}

func grayFromMat(m gocv.Mat) (*cameracanny.Gray, error) {
	if m.Empty() {
		return nil, fmt.Errorf("vision: empty result")
	}
	if m.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("vision: expected 8-bit single channel result, got type %v", m.Type())
	}
	out := cameracanny.NewGray(m.Cols(), m.Rows())
	copy(out.Pix, m.ToBytes())
	return out, nil
}
