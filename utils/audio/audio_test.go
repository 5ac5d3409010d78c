package audio

import "testing"

func TestDecodeULawDoublesLength(t *testing.T) {
	frame := []byte{0x00, 0x7f, 0xff, 0x80}
	pcm := DecodeULaw(frame)
	if len(pcm) != len(frame)*2 {
		t.Fatalf("decoded length = %d, want %d", len(pcm), len(frame)*2)
	}
}

func TestEncodeULawRejectsOddLength(t *testing.T) {
	if _, err := EncodeULaw([]byte{0x01}); err == nil {
		t.Fatal("expected error for sample-misaligned pcm")
	}
}

func TestNormalizeForRecognition(t *testing.T) {
	frame := []byte{0xff, 0xff}
	if got := NormalizeForRecognition(frame, 16000); len(got) != len(frame) {
		t.Errorf("16 kHz frame should pass through, got %d bytes", len(got))
	}
	if got := NormalizeForRecognition(frame, ULawSampleRate); len(got) != len(frame)*2 {
		t.Errorf("8 kHz frame should decode to %d bytes, got %d", len(frame)*2, len(got))
	}
}
