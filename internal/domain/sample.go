package domain

import "strings"

// NodeID identifies one testbed node (its hostname) for the whole run.
type NodeID string

// Short strips the site domain: "m3-1.grenoble.iot-lab.info" -> "m3-1".
func (n NodeID) Short() string {
	s := string(n)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// PowerSample is one measurement record from a node's consumption log.
type PowerSample struct {
	Node    NodeID  `json:"node"`
	Seconds uint32  `json:"timestamp_s"`
	Micros  uint32  `json:"timestamp_us"`
	PowerW  float64 `json:"power"`
}

// Timestamp combines the seconds and microseconds fields.
func (s PowerSample) Timestamp() float64 {
	return float64(s.Seconds) + float64(s.Micros)/1e6
}
