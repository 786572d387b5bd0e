package wearable

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"healthspan/internal/models"
)

type FileLink struct {
	Type     string          `json:"type"`
	URL      string          `json:"url"`
	Size     int64           `json:"size"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type ActivityView struct {
	models.BiometricReading
	Files []FileLink `json:"files"`
}

// Activities lists recent activities with fresh download links for their
// stored files. A file whose link cannot be signed is left out.
func (s *Syncer) Activities(ctx context.Context, userID uuid.UUID, limit int) ([]ActivityView, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	readings, err := s.readings.Activities(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(readings))
	for i, r := range readings {
		ids[i] = r.ID
	}
	files, err := s.files.ForReadings(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byReading := make(map[uuid.UUID][]models.ActivityFile)
	for _, f := range files {
		byReading[f.ReadingID] = append(byReading[f.ReadingID], f)
	}

	out := make([]ActivityView, 0, len(readings))
	for _, r := range readings {
		view := ActivityView{BiometricReading: r, Files: []FileLink{}}
		for _, f := range byReading[r.ID] {
			link, err := s.blobs.URL(ctx, f.ObjectKey, 0)
			if err != nil {
				continue
			}
			view.Files = append(view.Files, FileLink{
				Type:     f.FileType,
				URL:      link,
				Size:     f.FileSize,
				Metadata: json.RawMessage(f.Metadata),
			})
		}
		out = append(out, view)
	}
	return out, nil
}
