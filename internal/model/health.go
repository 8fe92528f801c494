package model

import "time"

// ProbeResult is the outcome of one synthetic upstream request.
type ProbeResult struct {
	URL        string
	StatusCode int
	Status     string
	Latency    time.Duration
}

// Reachable reports whether the upstream answered with a 2xx status.
func (p *ProbeResult) Reachable() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// HealthReport is the body of a successful /health call.
type HealthReport struct {
	Status    string      `json:"status"`
	Proxy     ProxyInfo   `json:"proxy"`
	Target    TargetInfo  `json:"target"`
	Timestamp string      `json:"timestamp"`
	Server    RuntimeInfo `json:"server"`
}

// ProxyInfo describes the running proxy process.
type ProxyInfo struct {
	Version    string     `json:"version"`
	Uptime     float64    `json:"uptime"` // seconds
	Memory     MemoryInfo `json:"memory"`
	PID        int        `json:"pid"`
	Goroutines int        `json:"goroutines"`
}

// MemoryInfo is a subset of runtime.MemStats, in bytes.
type MemoryInfo struct {
	Alloc     uint64 `json:"alloc"`
	HeapInuse uint64 `json:"heapInuse"`
	Sys       uint64 `json:"sys"`
	NumGC     uint32 `json:"numGC"`
}

// TargetInfo describes the upstream as seen by the probe.
type TargetInfo struct {
	URL          string `json:"url"`
	Reachable    bool   `json:"reachable"`
	ResponseTime int64  `json:"responseTime"` // milliseconds
	Status       int    `json:"status"`
	StatusText   string `json:"statusText"`
	Breaker      string `json:"breaker,omitempty"`
}

// RuntimeInfo describes the Go runtime and host platform.
type RuntimeInfo struct {
	Go       string `json:"go"`
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// UnhealthyReport is the body of a failed /health call.
type UnhealthyReport struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}
