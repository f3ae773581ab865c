// Package pgm reads and writes binary (P5) portable graymap files.
package pgm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxVal is the largest sample value written in the header
const MaxVal = 255

// Encode writes a P5 header followed by width*height samples.
func Encode(w io.Writer, width, height int, pix []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("pgm: invalid dimensions %dx%d", width, height)
	}
	if len(pix) < width*height {
		return fmt.Errorf("pgm: buffer holds %d bytes, need %d", len(pix), width*height)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P5\n%d %d\n%d\n", width, height, MaxVal); err != nil {
		return err
	}
	if _, err := bw.Write(pix[:width*height]); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile encodes the raster to path.
//
// On failure the partially written file is removed so that a directory of
// frames never contains a truncated image.
func WriteFile(path string, width, height int, pix []byte) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return Encode(f, width, height, pix)
}

// Decode reads a P5 graymap with maxval <= 255.
func Decode(r io.Reader) (width, height int, pix []byte, err error) {
	br := bufio.NewReader(r)

	var magic string
	if _, err = fmt.Fscan(br, &magic); err != nil {
		return 0, 0, nil, fmt.Errorf("pgm: reading magic: %w", err)
	}
	if magic != "P5" {
		return 0, 0, nil, fmt.Errorf("pgm: unsupported magic %q", magic)
	}

	var maxval int
	for _, dst := range []*int{&width, &height, &maxval} {
		if err = skipComments(br); err != nil {
			return 0, 0, nil, err
		}
		if _, err = fmt.Fscan(br, dst); err != nil {
			return 0, 0, nil, fmt.Errorf("pgm: reading header: %w", err)
		}
	}
	if width <= 0 || height <= 0 || maxval <= 0 || maxval > MaxVal {
		return 0, 0, nil, fmt.Errorf("pgm: bad header %dx%d maxval %d", width, height, maxval)
	}

	// Exactly one whitespace byte separates the header from the samples.
	if _, err = br.ReadByte(); err != nil {
		return 0, 0, nil, fmt.Errorf("pgm: reading header terminator: %w", err)
	}

	pix = make([]byte, width*height)
	if _, err = io.ReadFull(br, pix); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, 0, nil, fmt.Errorf("pgm: truncated raster: %w", err)
		}
		return 0, 0, nil, err
	}
	return width, height, pix, nil
}

// ReadFile decodes the graymap stored at path.
func ReadFile(path string) (width, height int, pix []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()
	return Decode(f)
}

func skipComments(br *bufio.Reader) error {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("pgm: reading header: %w", err)
		}
		switch {
		case b == '#':
			if _, err := br.ReadString('\n'); err != nil {
				return fmt.Errorf("pgm: reading comment: %w", err)
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
		default:
			return br.UnreadByte()
		}
	}
}
