package tables

import "testing"

func TestCombinedColorDescription(t *testing.T) {
	tests := []struct {
		name               string
		p                  ColourPrimaries
		tr                 TransferCharacteristics
		m                  MatrixCoefficients
		want               ColorDescription
	}{
		{"bt709 shortcut", PrimariesBT709, TransferSMPTE170M, MatrixBT709, ColorDescriptionBT709},
		{"all equal bt470bg", ColourPrimaries(PrimariesBT470BG), TransferCharacteristics(PrimariesBT470BG), MatrixCoefficients(PrimariesBT470BG), ColorDescriptionBT470BG},
		{"mismatched", PrimariesBT2020, TransferBT709, MatrixBT709, ColorDescriptionNone},
	}
	for _, test := range tests {
		if got := CombinedColorDescription(test.p, test.tr, test.m); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestBitDepthFromSamplePrecision(t *testing.T) {
	tests := []struct {
		code uint32
		want int
		ok   bool
	}{
		{1, 8, true},
		{3, 10, true},
		{5, 12, true},
		{2, 0, false},
		{7, 0, false},
	}
	for _, test := range tests {
		got, ok := BitDepthFromSamplePrecision(test.code)
		if got != test.want || ok != test.ok {
			t.Errorf("code=%d: got (%d,%v), want (%d,%v)", test.code, got, ok, test.want, test.ok)
		}
	}
}

func TestChannelConfigurationFromIndex(t *testing.T) {
	cfg, ch, ok := ChannelConfigurationFromIndex(1)
	if !ok || cfg != ChannelConfigStereo || ch != 2 {
		t.Errorf("got (%v,%d,%v), want (Stereo,2,true)", cfg, ch, ok)
	}
	if _, _, ok := ChannelConfigurationFromIndex(99); ok {
		t.Errorf("expected ok=false for unknown index")
	}
}

func TestBitRateKbpsScenario(t *testing.T) {
	// T/AI 109.3 bit_rate_table: Stereo, bitrate_index=7 -> 144 kbps.
	got, ok := BitRateKbps(ChannelConfigStereo, 7)
	if !ok || got != 144 {
		t.Errorf("got (%d,%v), want (144,true)", got, ok)
	}
}
