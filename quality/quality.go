// Package quality scores finished conversions with objective metrics:
// grayscale SSIM and PSNR approximations, compression ratio, and a
// simulated load time over a reference connection.
package quality

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"sync"
	"time"

	xwebp "golang.org/x/image/webp"

	"github.com/dulceflor/image-pipeline/core"
	"github.com/dulceflor/image-pipeline/utils"
)

// Thresholds are the configured expectations a conversion is scored against.
type Thresholds struct {
	MinSSIM float64
	MinPSNR float64 // dB
	// MaxCompressionRatio bounds webpSize/originalSize: a ratio above it
	// means the conversion reduced size less than expected.
	MaxCompressionRatio float64
	MaxLoadTimeMs       float64
	MinSavedPercentage  float64
	// ReferenceBandwidth simulates load time, in bytes per second.
	ReferenceBandwidth float64
}

// DefaultThresholds returns the production expectations.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSSIM:             0.85,
		MinPSNR:             30,
		MaxCompressionRatio: 0.9,
		MaxLoadTimeMs:       1000,
		MinSavedPercentage:  10,
		ReferenceBandwidth:  1.5 * 1024 * 1024 / 8, // 1.5 Mbps
	}
}

// Score penalties, applied in precedence order. The score starts at 100 and
// only ever decreases; it floors at 0.
const (
	penaltySSIM    = 20
	penaltyPSNR    = 15
	penaltyRatio   = 10
	penaltyLoad    = 10
	penaltySavings = 5
)

// Monitor samples conversions into a bounded rolling history and scores
// every conversion synchronously.
type Monitor struct {
	thresholds Thresholds
	sampleRate float64
	maxHistory int

	mu      sync.Mutex
	seen    int64
	history []core.QualityReport

	now func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithMaxHistory bounds the rolling history length.
func WithMaxHistory(n int) MonitorOption {
	return func(m *Monitor) { m.maxHistory = n }
}

// NewMonitor creates a Monitor that retains sampleRate (0..1) of conversions
// in its rolling history.
func NewMonitor(thresholds Thresholds, sampleRate float64, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		thresholds: thresholds,
		sampleRate: sampleRate,
		maxHistory: 500,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MonitorConversion measures and scores one conversion. The report is always
// returned; only sampled conversions enter the aggregate history.
func (m *Monitor) MonitorConversion(original, webpData []byte, conversionTimeMs, uploadTimeMs float64, bucket, path string) core.QualityReport {
	metrics := m.measure(original, webpData, conversionTimeMs, uploadTimeMs)
	report := m.score(metrics, bucket, path)

	m.mu.Lock()
	m.seen++
	if m.sampled(m.seen) {
		m.history = append(m.history, report)
		if len(m.history) > m.maxHistory {
			m.history = m.history[len(m.history)-m.maxHistory:]
		}
	}
	m.mu.Unlock()

	return report
}

// sampled implements deterministic 1-in-N sampling so tests and production
// both get a predictable retention fraction. Callers hold m.mu.
func (m *Monitor) sampled(n int64) bool {
	if m.sampleRate <= 0 {
		return false
	}
	if m.sampleRate >= 1 {
		return true
	}
	every := int64(math.Round(1 / m.sampleRate))
	return n%every == 1 || every == 1
}

func (m *Monitor) measure(original, webpData []byte, conversionTimeMs, uploadTimeMs float64) core.QualityMetrics {
	metrics := core.QualityMetrics{
		OriginalSize:     int64(len(original)),
		WebPSize:         int64(len(webpData)),
		ConversionTimeMs: conversionTimeMs,
		UploadTimeMs:     uploadTimeMs,
	}

	if metrics.OriginalSize > 0 {
		metrics.CompressionRatio = float64(metrics.WebPSize) / float64(metrics.OriginalSize)
		metrics.SavedPercentage = (1 - metrics.CompressionRatio) * 100
	}
	if m.thresholds.ReferenceBandwidth > 0 {
		metrics.LoadTimeMs = float64(metrics.WebPSize) / m.thresholds.ReferenceBandwidth * 1000
	}

	srcLum, srcOK := decodeLuminance(original)
	dstLum, dstOK := decodeLuminance(webpData)
	if srcOK && dstOK {
		metrics.HasSSIM = true
		metrics.HasPSNR = true
		if srcLum.w != dstLum.w || srcLum.h != dstLum.h {
			// Dimension mismatch is total structural mismatch, not an error.
			metrics.SSIM = 0
			metrics.PSNR = 0
		} else {
			metrics.SSIM = ssim(srcLum.pix, dstLum.pix)
			metrics.PSNR = psnr(srcLum.pix, dstLum.pix)
		}
	}

	return metrics
}

// score applies the deterministic penalty rules, in precedence order.
func (m *Monitor) score(metrics core.QualityMetrics, bucket, path string) core.QualityReport {
	score := 100
	var issues, recommendations []string

	if metrics.HasSSIM && metrics.SSIM < m.thresholds.MinSSIM {
		score -= penaltySSIM
		issues = append(issues, "structural similarity below minimum")
		recommendations = append(recommendations, "raise webp quality or disable aggressive resizing for this class")
	}
	if metrics.HasPSNR && metrics.PSNR < m.thresholds.MinPSNR {
		score -= penaltyPSNR
		issues = append(issues, "peak signal-to-noise ratio below minimum")
		recommendations = append(recommendations, "raise webp quality for this class")
	}
	if metrics.CompressionRatio > m.thresholds.MaxCompressionRatio {
		score -= penaltyRatio
		issues = append(issues, "compression ratio above maximum (insufficient size reduction)")
		recommendations = append(recommendations, "lower webp quality or tighten resize bounds")
	}
	if metrics.LoadTimeMs > m.thresholds.MaxLoadTimeMs {
		score -= penaltyLoad
		issues = append(issues, "simulated load time above maximum")
		recommendations = append(recommendations, "reduce output dimensions for this class")
	}
	if metrics.SavedPercentage < m.thresholds.MinSavedPercentage {
		score -= penaltySavings
		issues = append(issues, "size savings below 10%")
		recommendations = append(recommendations, "source may already be optimized; consider skipping similar assets")
	}

	if score < 0 {
		score = 0
	}

	return core.QualityReport{
		Bucket:          bucket,
		Path:            path,
		Timestamp:       m.now(),
		Metrics:         metrics,
		Score:           score,
		Passed:          len(issues) == 0,
		Issues:          issues,
		Recommendations: recommendations,
	}
}

// Stats aggregates the sampled history into quality bands.
type Stats struct {
	SampleSize           int
	Excellent            int // score 90-100
	Good                 int // 70-89
	Fair                 int // 50-69
	Poor                 int // 0-49
	MeanCompressionRatio float64
	MeanSavedPercentage  float64
	CommonIssues         map[string]int
}

// GenerateStats buckets every sampled report into quality bands and averages
// the compression metrics across the sample.
func (m *Monitor) GenerateStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{SampleSize: len(m.history), CommonIssues: make(map[string]int)}
	if len(m.history) == 0 {
		return stats
	}

	var ratioSum, savedSum float64
	for _, r := range m.history {
		switch {
		case r.Score >= 90:
			stats.Excellent++
		case r.Score >= 70:
			stats.Good++
		case r.Score >= 50:
			stats.Fair++
		default:
			stats.Poor++
		}
		ratioSum += r.Metrics.CompressionRatio
		savedSum += r.Metrics.SavedPercentage
		for _, issue := range r.Issues {
			stats.CommonIssues[issue]++
		}
	}
	stats.MeanCompressionRatio = ratioSum / float64(len(m.history))
	stats.MeanSavedPercentage = savedSum / float64(len(m.history))
	return stats
}

// ── luminance metrics ────────────────────────────────────────────────────────

type luminance struct {
	pix  []float64
	w, h int
}

// decodeLuminance decodes encoded bytes into a grayscale luminance buffer.
// A failed decode disables the similarity metrics rather than failing the
// conversion report.
func decodeLuminance(data []byte) (luminance, bool) {
	if len(data) == 0 {
		return luminance{}, false
	}

	var (
		img image.Image
		err error
	)
	switch utils.DetectFormat(data) {
	case "jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	case "webp":
		img, err = xwebp.Decode(bytes.NewReader(data))
	default:
		return luminance{}, false
	}
	if err != nil {
		return luminance{}, false
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]float64, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma from 16-bit channels scaled to 0-255.
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
			pix = append(pix, lum)
		}
	}
	return luminance{pix: pix, w: w, h: h}, true
}

// ssim computes a global structural similarity index over two
// equal-length luminance buffers.
func ssim(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	const (
		c1 = 6.5025  // (0.01 * 255)^2
		c2 = 58.5225 // (0.03 * 255)^2
	)

	meanA := mean(a)
	meanB := mean(b)

	var varA, varB, cov float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	n := float64(len(a))
	varA /= n
	varB /= n
	cov /= n

	num := (2*meanA*meanB + c1) * (2*cov + c2)
	den := (meanA*meanA + meanB*meanB + c1) * (varA + varB + c2)
	return num / den
}

// psnr computes the peak signal-to-noise ratio in dB. Identical buffers are
// capped at 100 dB instead of returning +Inf.
func psnr(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var mse float64
	for i := range a {
		d := a[i] - b[i]
		mse += d * d
	}
	mse /= float64(len(a))
	if mse == 0 {
		return 100
	}
	return 10 * math.Log10(255*255/mse)
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
