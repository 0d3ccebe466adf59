package http

import (
	"fmt"
	"net/http"

	"bloodlink-backend/internal/domain"
)

type createBloodRequestResponse struct {
	Request        bloodRequestDTO `json:"request"`
	NotifiedDonors int             `json:"notifiedDonors"`
}

func (h *Handler) CreateBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var body createBloodRequestBody
	if err := h.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, notified, err := h.requests.Create(r.Context(), p.UserID, body.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createBloodRequestResponse{Request: mapBloodRequest(req), NotifiedDonors: notified})
}

func (h *Handler) GetBloodRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBloodRequest(req))
}

func (h *Handler) ListBloodRequests(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := domain.RequestStatus(r.URL.Query().Get("status"))
	reqs, total, err := h.requests.List(r.Context(), status, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[bloodRequestDTO]{Items: mapBloodRequests(reqs), Total: total, Page: page, PageSize: pageSize})
}

func (h *Handler) ListMyBloodRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, total, err := h.requests.ListByRecipient(r.Context(), p.UserID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[bloodRequestDTO]{Items: mapBloodRequests(reqs), Total: total, Page: page, PageSize: pageSize})
}

type nearbyRequestsResponse struct {
	Requests []requestMatchDTO `json:"requests"`
}

// NearbyBloodRequests lists pending requests the calling donor can serve.
func (h *Handler) NearbyBloodRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	radius, _, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := h.requests.NearbyForDonor(r.Context(), p.UserID, radius)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]requestMatchDTO, len(matches))
	for i := range matches {
		out[i] = requestMatchDTO{
			Request:         mapBloodRequest(&matches[i].Request),
			DistanceKm:      matches[i].DistanceKm,
			LocationUnknown: matches[i].LocationUnknown,
		}
	}
	writeJSON(w, http.StatusOK, nearbyRequestsResponse{Requests: out})
}

func (h *Handler) AcceptBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.requests.Accept(r.Context(), id, p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBloodRequest(req))
}

func (h *Handler) RespondBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body respondBody
	if err := h.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.DonorID != 0 && body.DonorID != p.UserID {
		writeError(w, r, fmt.Errorf("%w: cannot respond on behalf of donor %d", domain.ErrForbidden, body.DonorID))
		return
	}
	req, err := h.requests.RecordResponse(r.Context(), id, body.response(p.UserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBloodRequest(req))
}

// authorizeManage loads the request and checks that p owns it or may manage
// requests on behalf of others.
func (h *Handler) authorizeManage(r *http.Request, p domain.Principal, id int32) error {
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if !req.OwnedBy(p) && !p.CanManageRequests() {
		return fmt.Errorf("%w: request %d belongs to another user", domain.ErrForbidden, id)
	}
	return nil
}

func (h *Handler) UpdateBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body updateStatusBody
	if err := h.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeManage(r, p, id); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.requests.UpdateStatus(r.Context(), id, domain.RequestStatus(body.Status), body.FulfilledBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBloodRequest(req))
}

func (h *Handler) CancelBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeManage(r, p, id); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.requests.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBloodRequest(req))
}

func (h *Handler) DeleteBloodRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeManage(r, p, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.requests.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "blood request deleted"})
}
