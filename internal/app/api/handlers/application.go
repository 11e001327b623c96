package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/service/application"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/platform/filestore"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/response"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

// @Summary      Application form token
// @Description  Issues the submission token the public form must echo back.
// @Tags         Application
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/applications/form-token [get]
func ApiApplicationFormToken(ident *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ident.IssueFormToken()
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]string{"form_token": token}))
	}
}

type submitApplicationResponse struct {
	ApplicationID  uint64 `json:"application_id"`
	PublicToken    string `json:"public_token"`
	StorageWarning string `json:"storage_warning,omitempty"`
}

// @Summary      Submit membership application
// @Description  Accepts the public application form as multipart form data with optional attachments.
// @Tags         Application
// @Accept       multipart/form-data
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/applications [post]
func ApiSubmitApplication(svc *application.Service, ident *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ident.VerifyFormToken(c.PostForm("form_token")); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid submission token"))
			return
		}

		req := &application.SubmitRequest{
			FirstName:              c.PostForm("first_name"),
			MiddleName:             c.PostForm("middle_name"),
			LastName:               c.PostForm("last_name"),
			AddressLine1:           c.PostForm("address_line_1"),
			AddressLine2:           c.PostForm("address_line_2"),
			Suburb:                 c.PostForm("suburb"),
			State:                  c.PostForm("state"),
			Postcode:               c.PostForm("postcode"),
			Phone:                  c.PostForm("phone"),
			Mobile:                 c.PostForm("mobile"),
			Email:                  c.PostForm("email"),
			MembershipType:         types.MembershipType(c.PostForm("membership_type")),
			Employer:               c.PostForm("employer"),
			JobPosition:            c.PostForm("job_position"),
			NominationStatus:       types.NominationStatus(c.PostForm("nomination_status")),
			NominatingMemberNumber: c.PostForm("nominating_member_number"),
			NominatingMemberName:   c.PostForm("nominating_member_name"),
			SignatureText:          c.PostForm("signature_text"),
			ApplicationNotes:       c.PostForm("application_notes"),
			Honeypot:               c.PostForm("website"),
		}
		if req.NominationStatus == "" {
			req.NominationStatus = types.NominationStatusSelfNominated
		}

		form, err := c.MultipartForm()
		if err == nil && form != nil {
			for _, fh := range form.File["files"] {
				f, err := fh.Open()
				if err != nil {
					c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "could not read uploaded file"))
					return
				}
				defer f.Close()
				req.Files = append(req.Files, &filestore.Upload{
					Filename: fh.Filename,
					MimeType: fh.Header.Get("Content-Type"),
					Size:     fh.Size,
					Content:  f,
				})
			}
		}

		result, err := svc.Submit(c.Request.Context(), req)
		if err != nil {
			code := response.APIResponseCodeError
			if errs.IsValidation(err) {
				code = response.APIResponseCodeBadRequest
			}
			c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
			return
		}

		out := submitApplicationResponse{
			ApplicationID: result.Application.ID,
			PublicToken:   result.Application.PublicToken,
		}
		if result.StorageWarning != nil {
			out.StorageWarning = "application saved, but one or more attachments could not be stored"
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterApplicationRoutes(r gin.IRouter, svc *application.Service, ident *identity.Service) {
	r.GET("/form-token", ApiApplicationFormToken(ident))
	r.POST("", ApiSubmitApplication(svc, ident))
}
