package api

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type systemResponse struct {
	UptimeSeconds  uint64  `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskFreeBytes  uint64  `json:"disk_free_bytes"`
	ImageCount     int     `json:"image_count"`
	ImageBytes     int64   `json:"image_bytes"`
}

// handleSystemStatus reports host health alongside image storage usage. Each
// probe is best effort; a failing one leaves its field zero rather than
// failing the whole request.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var resp systemResponse

	if uptime, err := host.Uptime(); err == nil {
		resp.UptimeSeconds = uptime
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedPercent = vm.UsedPercent
	}
	usage, err := disk.Usage(s.catalog.Dir())
	if err != nil {
		usage, err = disk.Usage("/")
	}
	if err == nil {
		resp.DiskTotalBytes = usage.Total
		resp.DiskFreeBytes = usage.Free
	}

	if records, err := s.catalog.ScanAll(); err == nil {
		resp.ImageCount = len(records)
		for _, record := range records {
			resp.ImageBytes += record.SizeBytes
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
