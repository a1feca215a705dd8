package model

import "time"

// AnnouncementID identifies a scheduled announcement
type AnnouncementID int64

// Announcement is a message scheduled for broadcast at a fixed time
type Announcement struct {
	ID          AnnouncementID `json:"id"`
	Message     string         `json:"message"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Sent        bool           `json:"sent"`
	CreatedAt   time.Time      `json:"created_at"`
}
