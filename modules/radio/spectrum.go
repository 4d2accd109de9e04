package radio

// SpectrumBands is the number of amplitude bands reported for visualisation.
const SpectrumBands = 32

// Spectrum holds one 0..255 level per band.
type Spectrum [SpectrumBands]uint8

// computeSpectrum splits 16-bit little-endian PCM into equal bands and
// stores the mean absolute sample of each, scaled to 0..255. Bands beyond the
// available samples read 0. An empty read leaves out as it was.
func computeSpectrum(pcm []byte, out *Spectrum) {
	samples := len(pcm) / 2
	if samples == 0 {
		return
	}

	*out = Spectrum{}
	perBand := max(samples/SpectrumBands, 1)

	for band := 0; band < SpectrumBands && band*perBand < samples; band++ {
		sum := 0
		start := band * perBand
		end := min(start+perBand, samples)
		for i := start; i < end; i++ {
			v := int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
			if v < 0 {
				v = -v
			}
			sum += v
		}
		avg := sum / perBand
		out[band] = uint8(avg * 255 / 32768)
	}
}
