package tftp

import (
	"testing"
	"time"
)

func TestNegotiateClampsBlockSizeZero(t *testing.T) {
	result := Negotiate([]Option{{Name: OptBlockSize, Value: 0}}, DefaultProtocolOptions(), 0, false)
	if result.Options.BlockSize != DefaultBlockSize {
		t.Errorf("blksize=0 should clamp to %d, got %d", DefaultBlockSize, result.Options.BlockSize)
	}
}

func TestNegotiateClampsBlockSizeTooLarge(t *testing.T) {
	result := Negotiate([]Option{{Name: OptBlockSize, Value: 999999}}, DefaultProtocolOptions(), 0, false)
	if result.Options.BlockSize != MaxBlockSize {
		t.Errorf("oversized blksize should clamp to %d, got %d", MaxBlockSize, result.Options.BlockSize)
	}
}

func TestNegotiateClampsTimeoutSeconds(t *testing.T) {
	result := Negotiate([]Option{{Name: OptTimeout, Value: 0}}, DefaultProtocolOptions(), 0, false)
	if result.Options.Timeout != time.Second {
		t.Errorf("timeout=0 should clamp to 1s, got %v", result.Options.Timeout)
	}

	result = Negotiate([]Option{{Name: OptTimeout, Value: 9999}}, DefaultProtocolOptions(), 0, false)
	if result.Options.Timeout != 255*time.Second {
		t.Errorf("timeout>255 should clamp to 255s, got %v", result.Options.Timeout)
	}
}

func TestNegotiateClampsWindowSize(t *testing.T) {
	result := Negotiate([]Option{{Name: OptWindowSize, Value: 0}}, DefaultProtocolOptions(), 0, false)
	if result.Options.WindowSize != DefaultWindowSize {
		t.Errorf("windowsize=0 should clamp to %d, got %d", DefaultWindowSize, result.Options.WindowSize)
	}
}

func TestNegotiateRRQTransferSizeIsFileLength(t *testing.T) {
	result := Negotiate([]Option{{Name: OptTransferSize, Value: 0}}, DefaultProtocolOptions(), 12345, false)
	if result.Options.TransferSize == nil || *result.Options.TransferSize != 12345 {
		t.Errorf("RRQ tsize should be overwritten with file length, got %v", result.Options.TransferSize)
	}
}

func TestNegotiateWRQTransferSizeIsRecorded(t *testing.T) {
	result := Negotiate([]Option{{Name: OptTransferSize, Value: 777}}, DefaultProtocolOptions(), 0, true)
	if result.Options.TransferSize == nil || *result.Options.TransferSize != 777 {
		t.Errorf("WRQ tsize should be recorded as offered, got %v", result.Options.TransferSize)
	}
}

func TestNegotiateNoOptionsProducesEmptyResponse(t *testing.T) {
	result := Negotiate(nil, DefaultProtocolOptions(), 0, false)
	if len(result.Response) != 0 {
		t.Errorf("expected no OACK response for a bare request, got %v", result.Response)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	requested := ProtocolOptions{BlockSize: 1024, WindowSize: 4, Timeout: 3 * time.Second}
	offered, kinds := RequestOptions(requested)

	result := Negotiate(offered, DefaultProtocolOptions(), 3000, false)

	once := requested.Apply(result.Response, kinds)
	twice := once.Apply(result.Response, kinds)

	if once != twice {
		t.Errorf("applying the same OACK twice should be idempotent: once=%#v twice=%#v", once, twice)
	}
}

func TestApplyIgnoresUnrequestedOption(t *testing.T) {
	requested := ProtocolOptions{BlockSize: 1024}
	_, kinds := RequestOptions(requested)

	result := requested.Apply([]Option{{Name: OptWindowSize, Value: 8}}, kinds)
	if result.WindowSize != DefaultWindowSize {
		t.Errorf("OACK option never requested must be ignored, got window size %d", result.WindowSize)
	}
}

func TestApplyRevertsUnacknowledgedOptionToDefault(t *testing.T) {
	requested := ProtocolOptions{BlockSize: 1024, WindowSize: 4}
	_, kinds := RequestOptions(requested)

	// Server's OACK only confirms blksize, silently refusing windowsize.
	result := requested.Apply([]Option{{Name: OptBlockSize, Value: 1024}}, kinds)
	if result.WindowSize != DefaultWindowSize {
		t.Errorf("option requested but absent from OACK should revert to default, got %d", result.WindowSize)
	}
}

func TestParseRolloverPolicy(t *testing.T) {
	cases := map[string]RolloverPolicy{
		"0": RolloverEnforce0,
		"1": RolloverEnforce1,
		"n": RolloverNone,
		"x": RolloverDontCare,
	}
	for tok, want := range cases {
		got, ok := ParseRolloverPolicy(tok)
		if !ok || got != want {
			t.Errorf("ParseRolloverPolicy(%q) = %v, %v; want %v, true", tok, got, ok, want)
		}
	}
	if _, ok := ParseRolloverPolicy("?"); ok {
		t.Errorf("ParseRolloverPolicy(\"?\") should fail")
	}
}
