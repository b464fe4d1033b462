package converter

import (
	"melodyverse/internal/entity/db"
	"melodyverse/internal/entity/dto"
)

// TaskToSummary converts a db.GenerationTask to dto.TaskSummary.
// storedURL 由调用方根据存储后端的公共地址前缀计算。
func TaskToSummary(t *db.GenerationTask, storedURL string) dto.TaskSummary {
	if t == nil {
		return dto.TaskSummary{}
	}
	return dto.TaskSummary{
		ID:               t.ID,
		Status:           t.Status,
		Prompt:           t.Prompt,
		Style:            t.Style,
		Title:            t.Title,
		Mode:             t.Mode,
		Instrumental:     t.Instrumental,
		Model:            t.Model,
		ExternalTaskCode: t.ExternalTaskCode,
		AudioURL:         t.AudioURL,
		TrackURLs:        t.TrackURLs.ToSlice(),
		StoredURL:        storedURL,
		Duration:         t.Duration,
		CreditCost:       t.CreditCost,
		ErrorMessage:     t.ErrorMessage,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}
