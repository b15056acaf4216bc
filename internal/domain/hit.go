package domain

import "time"

// Hit is one recorded visit. All fields are best effort and may be empty.
type Hit struct {
	IP      string    `json:"ip"`
	UA      string    `json:"ua"`
	Referer string    `json:"referer"`
	At      time.Time `json:"at"`
}

// NewHit creates a hit stamped with the current time
func NewHit(ip, userAgent, referer string) Hit {
	return Hit{
		IP:      ip,
		UA:      userAgent,
		Referer: referer,
		At:      time.Now().UTC(),
	}
}

// Capture is everything the notification dispatcher needs about one visit
type Capture struct {
	Slug         string
	Endpoint     string
	ResourceName string
	OriginalURL  string
	Hit          Hit
}
