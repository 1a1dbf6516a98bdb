package monitor

// statusTable maps the provider's numeric sale flags to display labels.
// The table is closed; anything else renders as "unknown".
var statusTable = map[int]SaleStatus{
	1: "not on sale",
	2: "on sale",
	3: "stopped",
	4: "sold out",
	5: "unavailable",
	6: "low stock",
	8: "temporarily sold out",
	9: "ineligible",
}

func statusFromCode(code int) SaleStatus {
	if s, ok := statusTable[code]; ok {
		return s
	}
	return StatusUnknown
}
