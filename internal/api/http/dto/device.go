package dto

import (
	"time"

	"github.com/proxmcp/gateway/internal/device"
)

type RegisterDeviceRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=255"`
	ClientInfo  string `json:"client_info" binding:"omitempty,max=1024"`
}

type RegisterDeviceResponse struct {
	DeviceID string `json:"device_id"`
	Message  string `json:"message"`
}

type ApproveRequest struct {
	TTLDays int `json:"ttl_days" binding:"omitempty,min=1,max=365"`
}

// ApproveResponse carries the cleartext token. It is returned exactly once
// and cannot be retrieved again.
type ApproveResponse struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
	ExpiresAt   string `json:"expires_at"`
}

type RevokeRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=1024"`
}

// DeviceInfo is the admin-facing projection of a record. Token material,
// including the stored hash, never appears here.
type DeviceInfo struct {
	DeviceID         string `json:"device_id"`
	DisplayName      string `json:"display_name"`
	ClientInfo       string `json:"client_info,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	SourceAddress    string `json:"source_address,omitempty"`
	State            string `json:"state"`
	RequestedAt      string `json:"requested_at"`
	IssuedAt         string `json:"issued_at,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	LastUsedAt       string `json:"last_used_at,omitempty"`
	UsageCount       int64  `json:"usage_count,omitempty"`
	RevokedAt        string `json:"revoked_at,omitempty"`
	RevocationReason string `json:"revocation_reason,omitempty"`
}

type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
	Count   int          `json:"count"`
}

type PendingResponse struct {
	Requests []DeviceInfo `json:"requests"`
	Count    int          `json:"count"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func FromRecord(rec device.Record) DeviceInfo {
	return DeviceInfo{
		DeviceID:         rec.DeviceID,
		DisplayName:      rec.DisplayName,
		ClientInfo:       rec.ClientInfo,
		UserAgent:        rec.UserAgent,
		SourceAddress:    rec.SourceAddress,
		State:            string(rec.State),
		RequestedAt:      formatTime(rec.RequestedAt),
		IssuedAt:         formatTime(rec.IssuedAt),
		ExpiresAt:        formatTime(rec.ExpiresAt),
		LastUsedAt:       formatTime(rec.LastUsedAt),
		UsageCount:       rec.UsageCount,
		RevokedAt:        formatTime(rec.RevokedAt),
		RevocationReason: rec.RevocationReason,
	}
}

func FromRecords(records []device.Record) []DeviceInfo {
	result := make([]DeviceInfo, len(records))
	for i, rec := range records {
		result[i] = FromRecord(rec)
	}
	return result
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
