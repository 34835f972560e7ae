package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

const maxBodyBytes = 1 << 20

type registerIn struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createTaskIn struct {
	Title       string              `json:"title"`
	Description *string             `json:"description"`
	Status      models.TaskStatus   `json:"status"`
	Priority    models.TaskPriority `json:"priority"`
	DueDate     *models.Date        `json:"due_date"`
}

func (in createTaskIn) toInput() models.TaskInput {
	return models.TaskInput{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
	}
}

// updateTaskIn keeps key presence so that an absent field is left alone
// while an explicit null clears it.
type updateTaskIn struct {
	Title       models.Field[string]              `json:"title"`
	Description models.Field[string]              `json:"description"`
	Status      models.Field[models.TaskStatus]   `json:"status"`
	Priority    models.Field[models.TaskPriority] `json:"priority"`
	DueDate     models.Field[models.Date]         `json:"due_date"`
}

func (in updateTaskIn) toPatch() models.TaskPatch {
	return models.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
	}
}

type messageOut struct {
	Message string `json:"message"`
}

var errBody = errors.New("invalid request body")

// decodeJSON reads exactly one JSON object into dst. Unknown fields, type
// mismatches and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBody)
	}
	return nil
}
