package capture_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/services/capture"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeDownsamples(t *testing.T) {
	t.Parallel()

	out, err := capture.Encode(testJPEG(t, 200, 100), models.ModeUltraFast.CapturePolicy())
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Fatalf("expected 50x25, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestEncodeFullResolution(t *testing.T) {
	t.Parallel()

	out, err := capture.Encode(testJPEG(t, 64, 48), models.FullResolution)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	cfg, _ := jpeg.DecodeConfig(bytes.NewReader(out))
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected full resolution, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCaptureFetchesSnapshot(t *testing.T) {
	t.Parallel()

	fixture := testJPEG(t, 40, 40)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(fixture)
	}))
	defer srv.Close()

	g := capture.NewGrabber(time.Second)
	frame, err := g.Capture(context.Background(), models.CameraSource{ID: "c1", DeviceHandle: srv.URL + "/snap"}, models.ModeDetailed.CapturePolicy())
	if err != nil || len(frame) == 0 {
		t.Fatalf("Capture() frame=%d err=%v", len(frame), err)
	}

	frame, err = g.Capture(context.Background(), models.CameraSource{ID: "c2", DeviceHandle: srv.URL + "/empty"}, models.FullResolution)
	if err != nil || frame != nil {
		t.Fatalf("expected no frame, got %d bytes err=%v", len(frame), err)
	}
}
