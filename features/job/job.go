package job

import (
	"encoding/json"
	"time"
)

// Job is a failed side effect parked for manual retry. Today the only
// producer is the persistence promoter.
type Job struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

// PromotePayload is the payload stored for handler "promoter".
type PromotePayload struct {
	ItemID   string `json:"item_id"`
	ImageRef string `json:"image_ref"`
}
