// Package capture grabs still images of the local display. Capture is
// inherently permission-gated on most desktops; every call may prompt the
// operator and a denial surfaces as an error.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Display captures one physical display as PNG bytes.
type Display struct {
	Index int
}

func (d Display) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if d.Index < 0 || d.Index >= n {
		return nil, fmt.Errorf("display %d out of range (%d active)", d.Index, n)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(d.Index))
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", d.Index, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
