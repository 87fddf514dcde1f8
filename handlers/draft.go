package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"robot-console/handlers/base"
	"robot-console/models"
	"robot-console/services"
	"robot-console/utils"

	"github.com/labstack/echo/v4"
)

// DraftManager is the part of the draft service the console API exposes.
type DraftManager interface {
	Create(ctx context.Context, kind models.IntentKind, robotID int64) (*services.DraftView, error)
	Get(ctx context.Context, id string) (*services.DraftView, error)
	Apply(ctx context.Context, id string, fn func(*services.EditBuffer) error) (*services.DraftView, error)
	StagedImage(ctx context.Context, id string, index int) (models.ImageUpload, error)
	Delete(ctx context.Context, id string) error
	Submit(ctx context.Context, id string) (*models.Robot, error)
}

type DraftHandler struct {
	drafts DraftManager
}

func NewDraftHandler(drafts DraftManager) *DraftHandler {
	return &DraftHandler{
		drafts: drafts,
	}
}

type createDraftRequest struct {
	Kind    models.IntentKind `json:"kind"`
	RobotID int64             `json:"robot_id,omitempty"`
}

// patchDraftRequest carries scalar edits, tag edits and the versioning
// directive. Absent members are left alone.
type patchDraftRequest struct {
	Reset         bool             `json:"reset,omitempty"`
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Language      *models.Language `json:"language,omitempty"`
	Code          *string          `json:"code,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
	AddTags       []string         `json:"add_tags,omitempty"`
	RemoveTags    []string         `json:"remove_tags,omitempty"`
	CreateVersion *bool            `json:"create_version,omitempty"`
	Changelog     string           `json:"changelog,omitempty"`
}

type parameterUpdateRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// ===================================================================
// DRAFT LIFECYCLE
// ===================================================================

func (h *DraftHandler) CreateDraft(c echo.Context) error {
	var req createDraftRequest
	if err := base.BindJSON(c, &req); err != nil {
		return err
	}
	if req.Kind == "" {
		req.Kind = models.IntentCreate
	}
	view, err := h.drafts.Create(c.Request().Context(), req.Kind, req.RobotID)
	if err != nil {
		return err
	}
	return base.SendCreatedJSON(c, "Draft created successfully", view)
}

func (h *DraftHandler) GetDraft(c echo.Context) error {
	id, err := base.ExtractStringParam(c, "id", true)
	if err != nil {
		return err
	}
	view, err := h.drafts.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return base.SendOKJSON(c, "Draft retrieved successfully", view)
}

func (h *DraftHandler) PatchDraft(c echo.Context) error {
	var req patchDraftRequest
	if err := base.BindJSON(c, &req); err != nil {
		return err
	}
	return h.apply(c, "Draft updated successfully", func(b *services.EditBuffer) error {
		return req.applyTo(b)
	})
}

func (r patchDraftRequest) applyTo(b *services.EditBuffer) error {
	if r.Reset {
		if err := b.Reset(); err != nil {
			return err
		}
	}
	if r.Name != nil {
		if err := b.SetName(*r.Name); err != nil {
			return err
		}
	}
	if r.Description != nil {
		if err := b.SetDescription(*r.Description); err != nil {
			return err
		}
	}
	if r.Language != nil {
		if err := b.SetLanguage(*r.Language); err != nil {
			return err
		}
	}
	if r.Code != nil {
		if err := b.SetCode(*r.Code); err != nil {
			return err
		}
	}
	if r.IsActive != nil {
		if err := b.SetActive(*r.IsActive); err != nil {
			return err
		}
	}
	for _, tag := range r.AddTags {
		if err := b.AddTag(tag); err != nil {
			return err
		}
	}
	for _, tag := range r.RemoveTags {
		if err := b.RemoveTag(tag); err != nil {
			return err
		}
	}
	if r.CreateVersion != nil {
		if *r.CreateVersion {
			return b.RequestVersion(r.Changelog)
		}
		return b.CancelVersion()
	}
	return nil
}

func (h *DraftHandler) DeleteDraft(c echo.Context) error {
	id, err := base.ExtractStringParam(c, "id", true)
	if err != nil {
		return err
	}
	if err := h.drafts.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return base.SendDeletionJSON(c, "Draft", id)
}

// SubmitDraft sends the draft to the robot API and returns the confirmed robot.
func (h *DraftHandler) SubmitDraft(c echo.Context) error {
	id, err := base.ExtractStringParam(c, "id", true)
	if err != nil {
		return err
	}
	robot, err := h.drafts.Submit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return base.SendOKJSON(c, "Robot saved successfully", robot)
}

// ===================================================================
// STAGED ATTACHMENTS
// ===================================================================

// AddImages stages images[] parts with optional image_titles[i] and
// image_captions[i] values, i being the part's position in the request.
func (h *DraftHandler) AddImages(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.NewBadRequestError("Expected a multipart body with images[] parts", err)
	}
	headers := form.File["images[]"]
	if len(headers) == 0 {
		return utils.NewUnprocessableError("images", "At least one image is required")
	}

	uploads := make([]models.ImageUpload, 0, len(headers))
	for i, fh := range headers {
		data, err := base.ReadFormFile(fh)
		if err != nil {
			return err
		}
		contentType := fh.Header.Get(echo.HeaderContentType)
		if contentType == "" || contentType == echo.MIMEOctetStream {
			contentType = http.DetectContentType(data)
		}
		uploads = append(uploads, models.ImageUpload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Data:        data,
			Title:       base.IndexedFormValue(form, "image_titles", i),
			Caption:     base.IndexedFormValue(form, "image_captions", i),
		})
	}
	return h.apply(c, "Images staged successfully", func(b *services.EditBuffer) error {
		return b.AddImages(uploads...)
	})
}

func (h *DraftHandler) RemoveImage(c echo.Context) error {
	index, err := base.ExtractIndexParam(c, "index")
	if err != nil {
		return err
	}
	return h.apply(c, "Image removed successfully", func(b *services.EditBuffer) error {
		return b.RemoveStagedImage(index)
	})
}

// PreviewImage returns the raw bytes of a staged image.
func (h *DraftHandler) PreviewImage(c echo.Context) error {
	id, err := base.ExtractStringParam(c, "id", true)
	if err != nil {
		return err
	}
	index, err := base.ExtractIndexParam(c, "index")
	if err != nil {
		return err
	}
	img, err := h.drafts.StagedImage(c.Request().Context(), id, index)
	if err != nil {
		return err
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	return c.Blob(http.StatusOK, contentType, img.Data)
}

// AddFiles stages files[] parts with optional file_names[i]. A batch with
// any extension other than psf or mq5 is rejected as a whole.
func (h *DraftHandler) AddFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.NewBadRequestError("Expected a multipart body with files[] parts", err)
	}
	headers := form.File["files[]"]
	if len(headers) == 0 {
		return utils.NewUnprocessableError("files", "At least one file is required")
	}

	uploads := make([]models.FileUpload, 0, len(headers))
	for i, fh := range headers {
		data, err := base.ReadFormFile(fh)
		if err != nil {
			return err
		}
		uploads = append(uploads, models.FileUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Data:        data,
			Name:        base.IndexedFormValue(form, "file_names", i),
		})
	}
	return h.apply(c, "Files staged successfully", func(b *services.EditBuffer) error {
		return b.AddFiles(uploads...)
	})
}

func (h *DraftHandler) RemoveFile(c echo.Context) error {
	index, err := base.ExtractIndexParam(c, "index")
	if err != nil {
		return err
	}
	return h.apply(c, "File removed successfully", func(b *services.EditBuffer) error {
		return b.RemoveStagedFile(index)
	})
}

// ===================================================================
// PERSISTED ATTACHMENT DELETIONS
// ===================================================================

func (h *DraftHandler) MarkImageDeletion(c echo.Context) error {
	return h.deletion(c, "Image marked for deletion", (*services.EditBuffer).MarkImageForDeletion)
}

func (h *DraftHandler) UnmarkImageDeletion(c echo.Context) error {
	return h.deletion(c, "Image deletion cancelled", (*services.EditBuffer).UnmarkImageForDeletion)
}

func (h *DraftHandler) MarkFileDeletion(c echo.Context) error {
	return h.deletion(c, "File marked for deletion", (*services.EditBuffer).MarkFileForDeletion)
}

func (h *DraftHandler) UnmarkFileDeletion(c echo.Context) error {
	return h.deletion(c, "File deletion cancelled", (*services.EditBuffer).UnmarkFileForDeletion)
}

func (h *DraftHandler) deletion(c echo.Context, message string, op func(*services.EditBuffer, int64) error) error {
	attachmentID, err := base.ExtractIDParam(c, "attachmentId")
	if err != nil {
		return err
	}
	return h.apply(c, message, func(b *services.EditBuffer) error {
		return op(b, attachmentID)
	})
}

// ===================================================================
// PARAMETERS
// ===================================================================

func (h *DraftHandler) AddParameter(c echo.Context) error {
	return h.apply(c, "Parameter added successfully", func(b *services.EditBuffer) error {
		_, err := b.AddParameter()
		return err
	})
}

// UpdateParameter applies {"field": ..., "value": ...} to one parameter.
// Unknown fields, and the derived key, are rejected.
func (h *DraftHandler) UpdateParameter(c echo.Context) error {
	index, err := base.ExtractIndexParam(c, "index")
	if err != nil {
		return err
	}
	var req parameterUpdateRequest
	if err := base.BindJSON(c, &req); err != nil {
		return err
	}
	update, err := services.ParseParameterUpdate(req.Field, req.Value)
	if err != nil {
		return err
	}
	return h.apply(c, "Parameter updated successfully", func(b *services.EditBuffer) error {
		return b.UpdateParameter(index, update)
	})
}

func (h *DraftHandler) RemoveParameter(c echo.Context) error {
	index, err := base.ExtractIndexParam(c, "index")
	if err != nil {
		return err
	}
	return h.apply(c, "Parameter removed successfully", func(b *services.EditBuffer) error {
		return b.RemoveParameter(index)
	})
}

func (h *DraftHandler) apply(c echo.Context, message string, fn func(*services.EditBuffer) error) error {
	id, err := base.ExtractStringParam(c, "id", true)
	if err != nil {
		return err
	}
	view, err := h.drafts.Apply(c.Request().Context(), id, fn)
	if err != nil {
		return err
	}
	return base.SendOKJSON(c, message, view)
}
