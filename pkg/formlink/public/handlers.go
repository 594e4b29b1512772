// Package public serves the unauthenticated form endpoints recipients reach
// through a link token.
package public

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/lifecycle"
	"github.com/mikepea/formlink/pkg/formlink/submissions"
)

// DefaultMaxUploadBytes caps the size of a whole submission request
const DefaultMaxUploadBytes int64 = 50 << 20

// Handler handles public link requests
type Handler struct {
	recorder *submissions.Recorder
	maxBytes int64
	now      func() time.Time
}

// NewHandler creates a new public handler
func NewHandler(recorder *submissions.Recorder, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Handler{recorder: recorder, maxBytes: maxBytes, now: time.Now}
}

// LinkStatus describes whether a link can take a submission
type LinkStatus struct {
	Token     string    `json:"token"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	GroupName string    `json:"group_name,omitempty"`
	Remaining *int      `json:"remaining,omitempty"`
}

// SubmissionResponse is returned after a successful submission
type SubmissionResponse struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Show reports whether a link is usable
// @Summary Check a form link
// @Tags public
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} LinkStatus
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 410 {object} map[string]string
// @Router /f/{token} [get]
func (h *Handler) Show(c *gin.Context) {
	link, err := h.recorder.ResolveLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := submissions.CheckUsable(*link, h.now()); err != nil {
		respondError(c, err)
		return
	}

	status := LinkStatus{
		Token:     link.ID,
		Kind:      link.Kind().String(),
		ExpiresAt: link.EndAt,
	}
	if link.Group != nil {
		status.GroupName = link.Group.Name
		if remaining := lifecycle.Remaining(*link.Group); remaining >= 0 {
			status.Remaining = &remaining
		}
	}
	c.JSON(http.StatusOK, status)
}

// Submit records a form submitted through a link
// @Summary Submit a form
// @Tags public
// @Accept multipart/form-data
// @Produce json
// @Param token path string true "Link token"
// @Param image formData file true "Photo"
// @Success 201 {object} SubmissionResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 410 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /f/{token} [post]
func (h *Handler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	var payload submissions.Payload
	if err := c.ShouldBind(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload too large"})
			return
		}
		// Parse errors name internals, recipients only learn the form was rejected
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data"})
		return
	}

	image, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
		return
	}

	form, err := h.recorder.Submit(c.Request.Context(), c.Param("token"), payload, image, h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmissionResponse{ID: form.ID, SubmittedAt: form.SubmittedAt})
}

// readImage returns the uploaded photo, or nil when none was sent
func readImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func respondError(c *gin.Context, err error) {
	var verr *submissions.ValidationError
	switch {
	case errors.Is(err, submissions.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, submissions.ErrLinkExpiredOrUsed):
		c.JSON(http.StatusGone, gin.H{"error": "Link has expired or was already used"})
	case errors.Is(err, submissions.ErrGroupFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Group is full"})
	case errors.Is(err, submissions.ErrInvalidImageFormat):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Image must be a jpg, png, gif, svg, bmp or webp file"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data", "fields": verr.Fields})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save submission"})
	}
}

// RegisterRoutes registers public routes on the root router.
// Middleware such as a rate limiter applies to both routes.
func (h *Handler) RegisterRoutes(r *gin.Engine, middleware ...gin.HandlerFunc) {
	f := r.Group("/f", middleware...)
	{
		f.GET("/:token", h.Show)
		f.POST("/:token", h.Submit)
	}
}
