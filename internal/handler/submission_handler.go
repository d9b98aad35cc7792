package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pengajuan-service/internal/models"
	"pengajuan-service/internal/notify"
	"pengajuan-service/internal/submission"
	"pengajuan-service/internal/util"
)

const sessionHeader = "X-Session-ID"

// StagerFactory builds a stager bound to one client session.
type StagerFactory func(sessionID string) *submission.Stager

// SubmissionHandler serves the commit endpoint, staff status updates,
// and the session-staged resumable flow.
type SubmissionHandler struct {
	service   *submission.Service
	stagerFor StagerFactory
	queue     notify.Queue
}

func NewSubmissionHandler(service *submission.Service, stagerFor StagerFactory, queue notify.Queue) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		stagerFor: stagerFor,
		queue:     queue,
	}
}

func (h *SubmissionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/pengajuan", func(r chi.Router) {
		r.Post("/", h.Commit)
		r.Get("/ref/{kode}", h.GetByReference)
		r.Get("/{id}", h.GetByID)
		r.Put("/{id}", h.UpdateStatus)

		// Resumable staged flow, keyed by X-Session-ID
		r.Post("/stage", h.Stage)
		r.Get("/resume", h.Resume)
		r.Post("/verify", h.VerifyStaged)
		r.Post("/commit", h.CommitStaged)
		r.Delete("/stage", h.CancelStaged)
	})
}

// Commit persists a payload whose OTP step the client completed via
// /otp/verify.
func (h *SubmissionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var form models.ApplicationForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}
	if err := validateForm(&form); err != nil {
		respondWithError(w, http.StatusBadRequest, err, err.Error())
		return
	}

	record, err := h.service.Commit(r.Context(), form)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Gagal menyimpan pengajuan")
		return
	}

	respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: map[string]interface{}{
			"kode_referensi": record.ReferenceCode,
			"pengajuan":      record,
		},
		Message: "Pengajuan berhasil disimpan",
	})
}

func (h *SubmissionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Pengajuan tidak ditemukan")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(record, ""))
}

// GetByReference lets an applicant check status with the code from the
// commit response.
func (h *SubmissionHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetByReference(r.Context(), chi.URLParam(r, "kode"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Pengajuan tidak ditemukan")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(record, ""))
}

type statusUpdateRequest struct {
	Status       string `json:"status"`
	SendEmail    bool   `json:"sendEmail"`
	SendWhatsApp bool   `json:"sendWhatsApp"`
	Message      string `json:"message"`
	DecidedBy    string `json:"decidedBy"`
}

// UpdateStatus applies a staff decision and enqueues notifications.
// Once the status write succeeds the response is a fixed success
// regardless of what happens to the notifications.
func (h *SubmissionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}

	record, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.DecidedBy, req.Message)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Gagal memperbarui status")
		return
	}

	if req.SendEmail || req.SendWhatsApp {
		err := h.queue.Publish(r.Context(), models.DispatchRequest{
			Record:       *record,
			SendEmail:    req.SendEmail,
			SendWhatsApp: req.SendWhatsApp,
			CustomText:   req.Message,
		})
		if err != nil {
			// The status change is already committed; log and move on
			util.Warn("failed to enqueue notification dispatch",
				zap.String("id", record.ID),
				zap.Error(err))
		}
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Status diperbarui dan notifikasi dikirim",
	})
}

type stageRequest struct {
	Phone   string                 `json:"phone"`
	Payload models.ApplicationForm `json:"payload"`
}

func (h *SubmissionHandler) Stage(w http.ResponseWriter, r *http.Request) {
	stager, ok := h.sessionStager(w, r)
	if !ok {
		return
	}

	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}
	if !phonePattern.MatchString(req.Phone) {
		respondWithError(w, http.StatusBadRequest,
			errors.New("invalid phone number"), "Nomor HP tidak valid")
		return
	}

	result, err := stager.Stage(r.Context(), req.Payload, req.Phone)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Gagal menyimpan draft")
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: result.Success,
		Message: result.Message,
	})
}

func (h *SubmissionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	stager, ok := h.sessionStager(w, r)
	if !ok {
		return
	}

	envelope, err := stager.Resume(r.Context())
	if err != nil {
		if errors.Is(err, submission.ErrNoDraft) {
			respondWithJSON(w, http.StatusOK, successResponse(nil, "Tidak ada draft tersimpan"))
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Gagal memuat draft")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(envelope, ""))
}

type stagedVerifyRequest struct {
	OTP string `json:"otp"`
}

func (h *SubmissionHandler) VerifyStaged(w http.ResponseWriter, r *http.Request) {
	stager, ok := h.sessionStager(w, r)
	if !ok {
		return
	}

	var req stagedVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Permintaan tidak valid")
		return
	}

	if err := stager.Verify(r.Context(), req.OTP); err != nil {
		respondWithJSON(w, http.StatusOK, Response{
			Success: false,
			Message: otpErrorMessage(err),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Kode OTP berhasil diverifikasi",
	})
}

func (h *SubmissionHandler) CommitStaged(w http.ResponseWriter, r *http.Request) {
	stager, ok := h.sessionStager(w, r)
	if !ok {
		return
	}

	record, err := stager.Commit(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Gagal menyimpan pengajuan")
		return
	}

	respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: map[string]interface{}{
			"kode_referensi": record.ReferenceCode,
			"pengajuan":      record,
		},
		Message: "Pengajuan berhasil disimpan",
	})
}

func (h *SubmissionHandler) CancelStaged(w http.ResponseWriter, r *http.Request) {
	stager, ok := h.sessionStager(w, r)
	if !ok {
		return
	}

	if err := stager.Cancel(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Gagal membatalkan draft")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Draft dibatalkan"))
}

func (h *SubmissionHandler) sessionStager(w http.ResponseWriter, r *http.Request) (*submission.Stager, bool) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("missing session id"), "Header X-Session-ID wajib diisi")
		return nil, false
	}
	return h.stagerFor(sessionID), true
}

func validateForm(form *models.ApplicationForm) error {
	form.FullName = util.SanitizeInput(form.FullName)
	form.Address = util.SanitizeInput(form.Address)
	form.Occupation = util.SanitizeInput(form.Occupation)

	switch {
	case form.FullName == "":
		return errors.New("nama lengkap wajib diisi")
	case len(form.NIK) != 16:
		return errors.New("NIK harus 16 digit")
	case !phonePattern.MatchString(form.Phone):
		return errors.New("nomor HP tidak valid")
	case form.Email == "":
		return errors.New("email wajib diisi")
	case form.ProductType == "":
		return errors.New("jenis tabungan wajib dipilih")
	}

	if util.ContainsSuspicious(form.FullName) || util.ContainsSuspicious(form.Address) {
		return errors.New("input mengandung karakter tidak diizinkan")
	}
	return nil
}
