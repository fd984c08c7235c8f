// Package capture fetches still frames from camera snapshot endpoints and
// downsamples them for analysis.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

const maxSnapshotBytes = 16 << 20

type Grabber struct {
	http *http.Client
}

func NewGrabber(timeout time.Duration) *Grabber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Grabber{http: &http.Client{Timeout: timeout}}
}

// Capture returns the source's current frame re-encoded as JPEG under
// policy. A nil frame with nil error means the camera had nothing to give.
func (g *Grabber) Capture(ctx context.Context, src models.CameraSource, policy models.CapturePolicy) ([]byte, error) {
	if src.DeviceHandle == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.DeviceHandle, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot %s: bad status: %s", src.ID, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", src.ID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return Encode(raw, policy)
}

// Encode decodes an image, scales it by policy.Scale and writes JPEG at
// policy.Quality.
func Encode(raw []byte, policy models.CapturePolicy) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if policy.Scale > 0 && policy.Scale < 1 {
		b := img.Bounds()
		w := max(1, int(math.Round(float64(b.Dx())*policy.Scale)))
		h := max(1, int(math.Round(float64(b.Dy())*policy.Scale)))
		img = imaging.Resize(img, w, h, imaging.Box)
	}

	quality := int(math.Round(policy.Quality * 100))
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return out.Bytes(), nil
}
