package model

import "time"

type HubStats struct {
	OnlineUsers   int           `json:"online_users"`
	Sessions      int           `json:"sessions"`
	Policy        string        `json:"policy"`
	Uptime        time.Duration `json:"uptime"`
	Broadcasts    uint64        `json:"broadcasts"`
	Relayed       uint64        `json:"relayed"`
	Delivered     uint64        `json:"delivered"`
	DroppedEvents uint64        `json:"dropped_events"`
}
