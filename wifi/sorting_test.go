package wifi

import (
	"reflect"
	"testing"
)

func TestSortScanRecords(t *testing.T) {
	tests := []struct {
		name     string
		records  []ScanRecord
		expected []ScanRecord
	}{
		{
			name:     "Sort by strength",
			records:  []ScanRecord{{SSID: "Weak", RSSI: -80}, {SSID: "Strong", RSSI: -40}},
			expected: []ScanRecord{{SSID: "Strong", RSSI: -40}, {SSID: "Weak", RSSI: -80}},
		},
		{
			name:     "Sort by SSID",
			records:  []ScanRecord{{SSID: "B", RSSI: -60}, {SSID: "A", RSSI: -60}},
			expected: []ScanRecord{{SSID: "A", RSSI: -60}, {SSID: "B", RSSI: -60}},
		},
		{
			name: "Complex sort",
			records: []ScanRecord{
				{SSID: "Dunder MiffLAN", RSSI: -71},
				{SSID: "TacoBoutAGoodSignal", RSSI: -42},
				{SSID: "Bill Wi the Science Fi", RSSI: -71},
				{SSID: "Police Surveillance 2", RSSI: -90},
			},
			expected: []ScanRecord{
				{SSID: "TacoBoutAGoodSignal", RSSI: -42},
				{SSID: "Bill Wi the Science Fi", RSSI: -71},
				{SSID: "Dunder MiffLAN", RSSI: -71},
				{SSID: "Police Surveillance 2", RSSI: -90},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortScanRecords(tt.records)
			if !reflect.DeepEqual(tt.records, tt.expected) {
				t.Errorf("SortScanRecords() got = %v, want %v", tt.records, tt.expected)
			}
		})
	}
}

func TestDedupeScanRecords(t *testing.T) {
	records := []ScanRecord{
		{SSID: "Multi-AP Network", RSSI: -80},
		{SSID: "", RSSI: -30},
		{SSID: "Multi-AP Network", RSSI: -55},
		{SSID: "GET off my LAN", RSSI: -60},
	}
	got := DedupeScanRecords(records)
	want := []ScanRecord{
		{SSID: "Multi-AP Network", RSSI: -55},
		{SSID: "GET off my LAN", RSSI: -60},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeScanRecords() got = %v, want %v", got, want)
	}
}

func TestScanRecordStrength(t *testing.T) {
	tests := []struct {
		rssi int
		want uint8
	}{
		{-120, 0},
		{-100, 0},
		{-75, 50},
		{-50, 100},
		{-20, 100},
	}
	for _, tt := range tests {
		if got := (ScanRecord{RSSI: tt.rssi}).Strength(); got != tt.want {
			t.Errorf("Strength(%d) = %d, want %d", tt.rssi, got, tt.want)
		}
	}
}
