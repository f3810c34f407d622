package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/repository"
	"github.com/stemsi/exstem-practice/internal/response"
	"github.com/stemsi/exstem-practice/internal/validator"
)

// OutcomeLookup finds journalled outcomes.
type OutcomeLookup interface {
	GetByAttemptID(ctx context.Context, attemptID string) (*model.SessionOutcome, error)
}

// SupportHandler answers "contact support with your attempt id" lookups.
type SupportHandler struct {
	outcomes OutcomeLookup
	log      zerolog.Logger
}

func NewSupportHandler(outcomes OutcomeLookup, log zerolog.Logger) *SupportHandler {
	return &SupportHandler{
		outcomes: outcomes,
		log:      log.With().Str("component", "support_handler").Logger(),
	}
}

// GetOutcome godoc
// GET /api/v1/support/outcomes/:attempt_id
// Only the owner of the attempt may read its outcome.
func (h *SupportHandler) GetOutcome(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID := c.Param("attempt_id")
	if fields := validator.Var("attempt_id", attemptID, "required,max=64,printascii"); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	o, err := h.outcomes.GetByAttemptID(c.Request.Context(), attemptID)
	if errors.Is(err, repository.ErrOutcomeNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Outcome lookup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if o.Owner != cred.Owner {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, o)
}
