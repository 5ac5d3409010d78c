package audio

import (
	"fmt"

	"github.com/zaf/g711"
)

// Telephone-grade clients capture at 8 kHz mu-law; the recognition service
// wants 16-bit linear PCM. Frames at other rates pass through untouched.
const ULawSampleRate = 8000

// DecodeULaw converts a mu-law frame to little-endian 16-bit linear PCM.
func DecodeULaw(frame []byte) []byte {
	return g711.DecodeUlaw(frame)
}

// EncodeULaw converts little-endian 16-bit linear PCM to mu-law.
func EncodeULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm length %d is not sample-aligned", len(pcm))
	}
	return g711.EncodeUlaw(pcm), nil
}

// NormalizeForRecognition prepares one inbound client frame for the
// recognition stream: 8 kHz frames are treated as mu-law and decoded,
// anything else is assumed linear16 already.
func NormalizeForRecognition(frame []byte, sampleRate int) []byte {
	if sampleRate == ULawSampleRate {
		return DecodeULaw(frame)
	}
	return frame
}
