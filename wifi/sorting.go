package wifi

import "sort"

// SortScanRecords sorts scan records in place.
// The sorting order is:
// 1. Strongest signal first.
// 2. Fallback to SSID alphabetically.
func SortScanRecords(records []ScanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a := records[i]
		b := records[j]

		if a.RSSI != b.RSSI {
			return a.RSSI > b.RSSI
		}
		return a.SSID < b.SSID
	})
}

// DedupeScanRecords keeps the strongest record for each SSID and drops hidden
// networks. The result is sorted.
func DedupeScanRecords(records []ScanRecord) []ScanRecord {
	best := make(map[string]ScanRecord, len(records))
	for _, r := range records {
		if r.SSID == "" {
			continue
		}
		if existing, ok := best[r.SSID]; ok && existing.RSSI >= r.RSSI {
			continue
		}
		best[r.SSID] = r
	}

	result := make([]ScanRecord, 0, len(best))
	for _, r := range best {
		result = append(result, r)
	}
	SortScanRecords(result)
	return result
}
