package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize  = 1024
	numBands = 64
	// smoothing keeps the displayed bands from flickering frame to frame.
	smoothing = 0.5
)

// Analyzer computes logarithmically spaced frequency bands from the PCM
// stream on its way to the device. Values are 0-255, read by polling.
type Analyzer struct {
	mu sync.Mutex

	fft    *fourier.FFT
	window []float64

	samples []float64
	index   int

	bands []float64

	sampleRate int
	channels   int
}

// NewAnalyzer creates an analyzer for the given stream format.
func NewAnalyzer(sampleRate, channels int) *Analyzer {
	window := make([]float64, fftSize)
	for i := range window {
		// Hanning window
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &Analyzer{
		fft:        fourier.NewFFT(fftSize),
		window:     window,
		samples:    make([]float64, fftSize),
		bands:      make([]float64, numBands),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Process consumes 16-bit little-endian PCM, mixing channels to mono and
// recomputing the bands each time a full FFT window fills.
func (a *Analyzer) Process(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	frame := bytesPerSample * a.channels
	for i := 0; i+frame <= len(data); i += frame {
		var sum float64
		for ch := 0; ch < a.channels; ch++ {
			off := i + ch*bytesPerSample
			s := int16(data[off]) | int16(data[off+1])<<8
			sum += float64(s) / 32768.0
		}
		a.samples[a.index] = sum / float64(a.channels)
		a.index = (a.index + 1) % fftSize
		if a.index == 0 {
			a.compute()
		}
	}
}

func (a *Analyzer) compute() {
	windowed := make([]float64, fftSize)
	for i := range windowed {
		windowed[i] = a.samples[(a.index+i)%fftSize] * a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, windowed)

	freqPerBin := float64(a.sampleRate) / float64(fftSize)
	minFreq, maxFreq := 20.0, math.Min(20000.0, float64(a.sampleRate)/2)
	logMin, logMax := math.Log10(minFreq), math.Log10(maxFreq)

	fresh := make([]float64, numBands)
	counts := make([]int, numBands)
	for bin := 1; bin < fftSize/2; bin++ {
		freq := float64(bin) * freqPerBin
		if freq < minFreq || freq > maxFreq {
			continue
		}
		band := int((math.Log10(freq) - logMin) / (logMax - logMin) * numBands)
		if band < 0 {
			band = 0
		}
		if band >= numBands {
			band = numBands - 1
		}
		mag := math.Hypot(real(coeffs[bin]), imag(coeffs[bin]))
		db := 20 * math.Log10(mag/float64(fftSize)+1e-10)
		// Normalize -60dB..0dB to 0..255.
		v := (db + 60) / 60 * 255
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		fresh[band] += v
		counts[band]++
	}
	for i := range fresh {
		if counts[i] > 0 {
			fresh[i] /= float64(counts[i])
		}
		a.bands[i] = smoothing*a.bands[i] + (1-smoothing)*fresh[i]
	}
}

// Bands returns the current band values.
func (a *Analyzer) Bands() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint8, numBands)
	for i, v := range a.bands {
		if v > 255 {
			v = 255
		}
		if v < 0 {
			v = 0
		}
		out[i] = uint8(v)
	}
	return out
}

// Reset clears accumulated samples and band state between tracks.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index = 0
	for i := range a.samples {
		a.samples[i] = 0
	}
	for i := range a.bands {
		a.bands[i] = 0
	}
}
