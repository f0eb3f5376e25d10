package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Watch is a planned beach visit someone asked to be notified about.
type Watch struct {
	BeachID string    `json:"beach_id"`
	Time    time.Time `json:"time"`
	Email   string    `json:"email"`
}

// notificationID is stable for a watch, so a redelivered notification can be
// deduplicated downstream.
func (w Watch) notificationID() string {
	name := strings.Join([]string{w.BeachID, w.Time.UTC().Format(time.RFC3339), w.Email}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// LoadWatches reads a JSON array of watches from path.
func LoadWatches(path string) ([]Watch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch file: %w", err)
	}
	var watches []Watch
	if err := json.Unmarshal(data, &watches); err != nil {
		return nil, fmt.Errorf("parse watch file %s: %w", path, err)
	}
	for i, w := range watches {
		if strings.TrimSpace(w.BeachID) == "" {
			return nil, fmt.Errorf("watch %d: beach_id is required", i)
		}
		if w.Time.IsZero() {
			return nil, fmt.Errorf("watch %d: time is required", i)
		}
	}
	return watches, nil
}
