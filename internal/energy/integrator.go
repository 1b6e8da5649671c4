package energy

import (
	"strconv"
	"strings"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// Measurement records (schema 1) carry exactly this many tab-separated fields:
// 0 timestamp, 1 schema id, 2 seq, 3 timestamp_s, 4 timestamp_us, 5 power,
// 6 voltage, 7 current. Other field counts are OML metadata.
const (
	recordFields = 8
	fieldSeconds = 3
	fieldMicros  = 4
	fieldPowerW  = 5
)

// ParseRecord extracts a power sample from one log line. It reports false for
// metadata and malformed lines, which callers skip.
func ParseRecord(line string) (domain.PowerSample, bool) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) != recordFields {
		return domain.PowerSample{}, false
	}
	sec, err := strconv.ParseUint(strings.TrimSpace(fields[fieldSeconds]), 10, 32)
	if err != nil {
		return domain.PowerSample{}, false
	}
	usec, err := strconv.ParseUint(strings.TrimSpace(fields[fieldMicros]), 10, 32)
	if err != nil {
		return domain.PowerSample{}, false
	}
	power, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldPowerW]), 64)
	if err != nil {
		return domain.PowerSample{}, false
	}
	return domain.PowerSample{
		Seconds: uint32(sec),
		Micros:  uint32(usec),
		PowerW:  power,
	}, true
}

// Integrate adds one sample to acc using the left Riemann rule: the interval
// ending at the sample is charged at the sample's power. hasPrev is false for
// the first sample of a node, which only seeds the timestamp. A sample older
// than prevTS contributes nothing and leaves prevTS in place, so no interval
// is ever charged twice. Negative power contributes nothing.
func Integrate(prevTS float64, hasPrev bool, acc float64, s domain.PowerSample) (float64, float64) {
	ts := s.Timestamp()
	if !hasPrev {
		return acc, ts
	}
	dt := ts - prevTS
	if dt <= 0 {
		return acc, prevTS
	}
	if s.PowerW <= 0 {
		return acc, ts
	}
	return acc + dt*s.PowerW, ts
}
