// pkg/pager/corruption_test.go
package pager

import (
	"bytes"
	"testing"
)

func TestCalculatePageChecksum(t *testing.T) {
	// Create sample page data
	pageSize := 4096
	data := make([]byte, pageSize)

	// Fill with some pattern
	for i := 0; i < pageSize-PageChecksumSize; i++ {
		data[i] = byte(i % 256)
	}

	// Calculate checksum
	checksum := CalculatePageChecksum(data)

	// Should be non-zero for non-empty data
	if checksum == 0 {
		t.Error("Expected non-zero checksum for patterned data")
	}

	// Same data should produce same checksum
	checksum2 := CalculatePageChecksum(data)
	if checksum != checksum2 {
		t.Errorf("Checksum not deterministic: %08x != %08x", checksum, checksum2)
	}
}

func TestWriteReadPageChecksum(t *testing.T) {
	pageSize := 4096
	data := make([]byte, pageSize)

	// Fill with pattern
	for i := 0; i < pageSize-PageChecksumSize; i++ {
		data[i] = byte(i % 256)
	}

	// Write checksum
	WritePageChecksum(data)

	// Read it back
	storedChecksum := ReadPageChecksum(data)

	// Calculate expected
	expectedChecksum := CalculatePageChecksum(data)

	if storedChecksum != expectedChecksum {
		t.Errorf("Stored checksum %08x doesn't match calculated %08x", storedChecksum, expectedChecksum)
	}
}

func TestVerifyPageChecksum_Valid(t *testing.T) {
	// Enable checksums for this test
	oldEnabled := ChecksumEnabled
	ChecksumEnabled = true
	defer func() { ChecksumEnabled = oldEnabled }()

	pageSize := 4096
	data := make([]byte, pageSize)

	// Fill with pattern
	for i := 0; i < pageSize-PageChecksumSize; i++ {
		data[i] = byte(i % 256)
	}

	// Write valid checksum
	WritePageChecksum(data)

	// Verify should pass
	err := VerifyPageChecksum(1, data)
	if err != nil {
		t.Errorf("Expected no error for valid checksum, got: %v", err)
	}
}

func TestVerifyPageChecksum_Corrupted(t *testing.T) {
	// Enable checksums for this test
	oldEnabled := ChecksumEnabled
	ChecksumEnabled = true
	defer func() { ChecksumEnabled = oldEnabled }()

	pageSize := 4096
	data := make([]byte, pageSize)

	// Fill with pattern
	for i := 0; i < pageSize-PageChecksumSize; i++ {
		data[i] = byte(i % 256)
	}

	// Write valid checksum
	WritePageChecksum(data)

	// Corrupt a byte in the middle
	data[pageSize/2] ^= 0xFF

	// Verify should fail
	err := VerifyPageChecksum(1, data)
	if err == nil {
		t.Error("Expected error for corrupted data, got nil")
	}
	if err != nil && err.ExpectedCRC == err.ActualCRC {
		t.Error("Expected different checksums for corrupted data")
	}
}

func TestVerifyPageChecksum_UninitializedPage(t *testing.T) {
	pageSize := 4096
	data := make([]byte, pageSize) // All zeros

	// Uninitialized page (all zeros) should not trigger error
	err := VerifyPageChecksum(1, data)
	if err != nil {
		t.Errorf("Expected no error for uninitialized page, got: %v", err)
	}
}

func TestDetectTornWrite_NoMarkers(t *testing.T) {
	pageSize := 4096
	data := make([]byte, pageSize)

	// Page without markers should not trigger torn write detection
	err := DetectTornWrite(1, data, pageSize)
	if err != nil {
		t.Errorf("Expected no error for page without markers, got: %v", err)
	}
}

func TestDetectTornWrite_AllMarkers(t *testing.T) {
	pageSize := 4096
	data := make([]byte, pageSize)

	// Write markers at expected positions
	markerOffsets := []int{
		0,
		pageSize / 2,
		pageSize - TornWriteMarkerSize - PageChecksumSize,
	}

	for _, offset := range markerOffsets {
		copy(data[offset:], TornWriteMarker)
	}

	// All markers present should not trigger torn write detection
	err := DetectTornWrite(1, data, pageSize)
	if err != nil {
		t.Errorf("Expected no error with all markers valid, got: %v", err)
	}
}

func TestDetectTornWrite_PartialMarkers(t *testing.T) {
	pageSize := 4096
	data := make([]byte, pageSize)

	// Write valid marker at start
	copy(data[0:], TornWriteMarker)

	// Write partial/corrupted marker in middle (some bytes match, some don't)
	copy(data[pageSize/2:], []byte{0xAA, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	// This simulates a torn write where the second marker was partially written
	err := DetectTornWrite(1, data, pageSize)
	if err == nil {
		t.Error("Expected torn write to be detected: one valid marker and one non-zero mismatched marker")
	}
}

func TestCorruptionError_String(t *testing.T) {
	// Test checksum mismatch error
	err := &CorruptionError{
		PageNo:      42,
		PageType:    PageTypeHNSWOverflow,
		ExpectedCRC: 0x12345678,
		ActualCRC:   0x87654321,
	}

	str := err.Error()
	if str == "" {
		t.Error("Expected non-empty error string")
	}

	// Test torn write error
	err2 := &CorruptionError{
		PageNo:      42,
		PageType:    PageTypeHNSWBucket,
		IsTornWrite: true,
		Message:     "partial marker pattern detected",
	}

	str2 := err2.Error()
	if str2 == "" {
		t.Error("Expected non-empty error string for torn write")
	}
}

func TestCorruptionChecker_CheckPage(t *testing.T) {
	tmpDir := t.TempDir()
	p, err := Open(tmpDir+"/test.db", Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	// Allocate a page
	page, err := p.Allocate()
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}

	// Write some data
	data := page.Data()
	copy(data, []byte("test data"))
	page.SetDirty(true)
	p.Release(page)

	// Create checker
	checker := NewCorruptionChecker(p)

	// Check the page - uninitialized checksum should pass
	corrErr := checker.CheckPage(page.PageNo())
	if corrErr != nil {
		t.Errorf("Expected no corruption for freshly allocated page, got: %v", corrErr)
	}
}

func TestCorruptionChecker_CheckAllPages(t *testing.T) {
	tmpDir := t.TempDir()
	p, err := Open(tmpDir+"/test.db", Options{PageSize: 4096})
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	// Allocate several pages
	for i := 0; i < 5; i++ {
		page, err := p.Allocate()
		if err != nil {
			t.Fatalf("Failed to allocate page %d: %v", i, err)
		}
		p.Release(page)
	}

	// Create checker
	checker := NewCorruptionChecker(p)

	// Check all pages
	errors := checker.CheckAllPages()

	// Should have no errors for fresh pages
	if len(errors) > 0 {
		t.Errorf("Expected no corruption errors, got %d: %v", len(errors), errors)
	}
}

func TestChecksumDataIntegrity(t *testing.T) {
	// Verify that checksum actually detects any byte change
	pageSize := 4096
	originalData := make([]byte, pageSize)

	// Fill with pattern
	for i := 0; i < pageSize; i++ {
		originalData[i] = byte(i % 256)
	}

	// Write checksum
	WritePageChecksum(originalData)
	originalChecksum := ReadPageChecksum(originalData)

	// Test that changing any byte (except checksum bytes) changes the checksum
	for i := 0; i < pageSize-PageChecksumSize; i += 100 { // Test every 100th byte
		testData := make([]byte, pageSize)
		copy(testData, originalData)

		// Change one byte
		testData[i] ^= 0xFF

		// Calculate new checksum
		newChecksum := CalculatePageChecksum(testData)

		if newChecksum == originalChecksum {
			t.Errorf("Checksum collision at byte %d: changing byte didn't change checksum", i)
		}
	}
}

func TestTornWriteMarker(t *testing.T) {
	// Verify marker is correct length
	if len(TornWriteMarker) != TornWriteMarkerSize {
		t.Errorf("TornWriteMarker length %d doesn't match TornWriteMarkerSize %d",
			len(TornWriteMarker), TornWriteMarkerSize)
	}

	// Verify marker has alternating pattern (easy to detect partial writes)
	expected := []byte{0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55}
	if !bytes.Equal(TornWriteMarker, expected) {
		t.Errorf("TornWriteMarker pattern doesn't match expected alternating pattern")
	}
}
