package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/scheduling"
)

// Requests

type RecurrenceRequest struct {
	Pattern     string     `json:"pattern"`
	Occurrences int        `json:"occurrences,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

type ReceiptDTO struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type PaymentMetaRequest struct {
	Method  *string     `json:"method,omitempty"`
	Notes   *string     `json:"notes,omitempty"`
	Receipt *ReceiptDTO `json:"receipt,omitempty"`
}

type CreateSessionRequest struct {
	PatientID        string              `json:"patient_id"`
	StartTime        time.Time           `json:"start_time"`
	DurationMinutes  int                 `json:"duration_minutes"`
	IsCourtesy       bool                `json:"is_courtesy"`
	ClinicalNotes    *string             `json:"clinical_notes,omitempty"`
	Observations     *string             `json:"observations,omitempty"`
	Recurrence       *RecurrenceRequest  `json:"recurrence,omitempty"`
	CustomPriceCents *int64              `json:"custom_price_cents,omitempty"`
	IsPaid           bool                `json:"is_paid"`
	Payment          *PaymentMetaRequest `json:"payment,omitempty"`
}

type PreviewRequest struct {
	StartTime       time.Time         `json:"start_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Recurrence      RecurrenceRequest `json:"recurrence"`
}

type RescheduleRequest struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type PackageSessionRequest struct {
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IsCourtesy      bool      `json:"is_courtesy"`
}

type CreatePackageRequest struct {
	PatientID       string                  `json:"patient_id"`
	Name            string                  `json:"name"`
	Notes           *string                 `json:"notes,omitempty"`
	TotalSessions   int                     `json:"total_sessions"`
	TotalPriceCents int64                   `json:"total_price_cents"`
	Sessions        []PackageSessionRequest `json:"sessions"`
	IsPaid          bool                    `json:"is_paid"`
	Payment         *PaymentMetaRequest     `json:"payment,omitempty"`
}

type AddPackageSessionsRequest struct {
	Sessions []PackageSessionRequest `json:"sessions"`
}

type UpdatePaymentRequest struct {
	AmountCents *int64      `json:"amount_cents,omitempty"`
	Status      *string     `json:"status,omitempty"`
	Method      *string     `json:"method,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
	Receipt     *ReceiptDTO `json:"receipt,omitempty"`
}

// Responses

type RecurrenceInfo struct {
	GroupID uuid.UUID  `json:"group_id"`
	Pattern string     `json:"pattern"`
	EndDate *time.Time `json:"end_date,omitempty"`
	Count   int        `json:"count"`
	Index   int        `json:"index"`
}

type PackageInfo struct {
	PackageID uuid.UUID `json:"package_id"`
	Order     int       `json:"order"`
}

type PaymentResponse struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   uuid.UUID   `json:"session_id"`
	AmountCents int64       `json:"amount_cents"`
	Status      string      `json:"status"`
	Method      *string     `json:"method,omitempty"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
	Receipt     *ReceiptDTO `json:"receipt,omitempty"`
}

type SessionResponse struct {
	ID              uuid.UUID        `json:"id"`
	PatientID       uuid.UUID        `json:"patient_id"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	DurationMinutes int              `json:"duration_minutes"`
	Status          string           `json:"status"`
	IsCourtesy      bool             `json:"is_courtesy"`
	ClinicalNotes   *string          `json:"clinical_notes,omitempty"`
	Observations    *string          `json:"observations,omitempty"`
	Recurrence      *RecurrenceInfo  `json:"recurrence,omitempty"`
	Package         *PackageInfo     `json:"package,omitempty"`
	Payment         *PaymentResponse `json:"payment,omitempty"`
}

type SessionBatchResponse struct {
	RecurrenceGroupID *uuid.UUID        `json:"recurrence_group_id,omitempty"`
	Sessions          []SessionResponse `json:"sessions"`
}

type PreviewSlotResponse struct {
	StartTime time.Time `json:"start_time"`
	Conflict  bool      `json:"conflict"`
}

type StatsResponse struct {
	Scheduled      int `json:"scheduled"`
	Completed      int `json:"completed"`
	NoShow         int `json:"no_show"`
	Cancelled      int `json:"cancelled"`
	Consumed       int `json:"consumed"`
	RemainingSlots int `json:"remaining_slots"`
	TotalScheduled int `json:"total_scheduled"`
}

type PackageResponse struct {
	ID                   uuid.UUID         `json:"id"`
	PatientID            uuid.UUID         `json:"patient_id"`
	Name                 string            `json:"name"`
	Notes                *string           `json:"notes,omitempty"`
	TotalSessions        int               `json:"total_sessions"`
	TotalPriceCents      int64             `json:"total_price_cents"`
	PricePerSessionCents int64             `json:"price_per_session_cents"`
	Status               string            `json:"status"`
	Sessions             []SessionResponse `json:"sessions"`
	Stats                StatsResponse     `json:"stats"`
}

type CreatedResponse struct {
	CreatedCount int `json:"created_count"`
}

type DeletedResponse struct {
	DeletedCount int `json:"deleted_count"`
}

type ErrorResponse struct {
	Error     string      `json:"error"`
	Details   string      `json:"details,omitempty"`
	Conflicts []time.Time `json:"conflicts,omitempty"`
}

// Conversions

func (r *ReceiptDTO) toDomain() *scheduling.Receipt {
	if r == nil {
		return nil
	}
	return &scheduling.Receipt{URL: r.URL, Filename: r.Filename, ContentType: r.ContentType, Size: r.Size}
}

func receiptDTO(r *scheduling.Receipt) *ReceiptDTO {
	if r == nil {
		return nil
	}
	return &ReceiptDTO{URL: r.URL, Filename: r.Filename, ContentType: r.ContentType, Size: r.Size}
}

func methodPtr(s *string) *scheduling.PaymentMethod {
	if s == nil {
		return nil
	}
	m := scheduling.PaymentMethod(*s)
	return &m
}

func (p *PaymentMetaRequest) toDomain() *scheduling.PaymentMeta {
	if p == nil {
		return nil
	}
	return &scheduling.PaymentMeta{Method: methodPtr(p.Method), Notes: p.Notes, Receipt: p.Receipt.toDomain()}
}

func (r RecurrenceRequest) toDomain() scheduling.RecurrenceInput {
	return scheduling.RecurrenceInput{
		Pattern: scheduling.RecurrencePattern(r.Pattern),
		Termination: scheduling.Termination{
			Occurrences: r.Occurrences,
			EndDate:     r.EndDate,
		},
	}
}

func packageSlots(in []PackageSessionRequest) []scheduling.PackageSessionInput {
	out := make([]scheduling.PackageSessionInput, len(in))
	for i, s := range in {
		out[i] = scheduling.PackageSessionInput{
			StartTime:       s.StartTime,
			DurationMinutes: s.DurationMinutes,
			IsCourtesy:      s.IsCourtesy,
		}
	}
	return out
}

func (r UpdatePaymentRequest) toDomain() scheduling.PaymentUpdate {
	upd := scheduling.PaymentUpdate{
		AmountCents: r.AmountCents,
		Method:      methodPtr(r.Method),
		Notes:       r.Notes,
		Receipt:     r.Receipt.toDomain(),
	}
	if r.Status != nil {
		st := scheduling.PaymentStatus(*r.Status)
		upd.Status = &st
	}
	return upd
}

func paymentResponse(p *scheduling.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	resp := &PaymentResponse{
		ID:          p.ID,
		SessionID:   p.SessionID,
		AmountCents: p.AmountCents,
		Status:      string(p.Status),
		PaidAt:      p.PaidAt,
		Notes:       p.Notes,
		Receipt:     receiptDTO(p.Receipt),
	}
	if p.Method != nil {
		m := string(*p.Method)
		resp.Method = &m
	}
	return resp
}

func sessionResponse(d scheduling.SessionDetail) SessionResponse {
	resp := SessionResponse{
		ID:              d.ID,
		PatientID:       d.PatientID,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime(),
		DurationMinutes: d.DurationMinutes,
		Status:          string(d.Status),
		IsCourtesy:      d.IsCourtesy,
		ClinicalNotes:   d.ClinicalNotes,
		Observations:    d.Observations,
		Payment:         paymentResponse(d.Payment),
	}

	switch m := d.Membership.(type) {
	case *scheduling.RecurrenceMembership:
		resp.Recurrence = &RecurrenceInfo{
			GroupID: m.GroupID,
			Pattern: string(m.Pattern),
			EndDate: m.EndDate,
			Count:   m.Count,
			Index:   m.Index,
		}
	case *scheduling.PackageMembership:
		resp.Package = &PackageInfo{PackageID: m.PackageID, Order: m.Order}
	}
	return resp
}

func sessionResponses(details []scheduling.SessionDetail) []SessionResponse {
	out := make([]SessionResponse, len(details))
	for i := range details {
		out[i] = sessionResponse(details[i])
	}
	return out
}

func statsResponse(st scheduling.PackageStats) StatsResponse {
	return StatsResponse{
		Scheduled:      st.Scheduled,
		Completed:      st.Completed,
		NoShow:         st.NoShow,
		Cancelled:      st.Cancelled,
		Consumed:       st.Consumed,
		RemainingSlots: st.RemainingSlots,
		TotalScheduled: st.TotalScheduled,
	}
}

func packageResponse(d *scheduling.PackageDetail) PackageResponse {
	return PackageResponse{
		ID:                   d.Package.ID,
		PatientID:            d.Package.PatientID,
		Name:                 d.Package.Name,
		Notes:                d.Package.Notes,
		TotalSessions:        d.Package.TotalSessions,
		TotalPriceCents:      d.Package.TotalPriceCents,
		PricePerSessionCents: d.Package.PricePerSessionCents(),
		Status:               string(d.Package.Status),
		Sessions:             sessionResponses(d.Sessions),
		Stats:                statsResponse(d.Stats),
	}
}
