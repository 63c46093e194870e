package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"loanvoice-platform/internal/auth"
	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/conversations"
	"loanvoice-platform/internal/dispatch"
	"loanvoice-platform/internal/reporting"
	"loanvoice-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Broadcaster pushes an event frame to every realtime consumer.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth        *auth.Manager
	Hub         Broadcaster
	Directory   *borrowers.Directory
	Dispatcher  telephony.AgentDispatcher
	Transcripts conversations.Store
	Reports     *reporting.Service
	Audit       Auditor
	Caps        *CallCaps
}

// Auditor is the audit surface the handlers need. Audit failures are logged
// by the service and never block the request.
type Auditor interface {
	LogDispatchAccepted(ctx context.Context, actorUserID, actorRole, ip, phone, room, dispatchID string) error
	LogDispatchRejected(ctx context.Context, actorUserID, actorRole, ip, phone, reason string) error
	LogListReplaced(ctx context.Context, actorUserID, actorRole, ip string, count int, metadata string) error
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Borrower list upload ---

// UploadCSV replaces the borrower book from a CSV upload. Success is always
// a full replace; there is no partial merge. Every connected console learns
// about the new list through the borrowers_update broadcast.
func (h Handlers) UploadCSV(c *gin.Context) {
	if h.Directory == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "directory not configured"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Please upload a CSV file"})
		return
	}

	list, err := borrowers.ParseCSV(file)
	if err != nil {
		var missing *borrowers.MissingColumnsError
		if errors.As(err, &missing) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":           missing.Error(),
				"missing_columns": missing.Columns,
				"friendly_names":  missing.FriendlyNames,
				"message":         missing.Message(),
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.Directory.Replace(list)

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogListReplaced(c.Request.Context(), uid, role, c.ClientIP(), len(list),
			fmt.Sprintf(`{"filename":%q}`, header.Filename))
	}
	if h.Hub != nil {
		h.Hub.Broadcast("borrowers_update", gin.H{"borrowers": list})
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "borrowers": list, "count": len(list)})
}

// --- Call dispatch ---

type userInfo struct {
	FirstName         string  `json:"F_Name"`
	LastName          string  `json:"L_Name"`
	CurrentBalance    float64 `json:"Current_balance"`
	LastPaymentDate   string  `json:"Date_of_last_payment"`
	InstallmentAmount float64 `json:"Installment_Amount"`
	ChannelPreference string  `json:"Channel_Preference"`
}

type dispatchCallRequest struct {
	Phone    string   `json:"phone"`
	UserInfo userInfo `json:"user_info"`
}

// DispatchCall places one outbound agent call. The response confirms
// acceptance only; progress and outcome travel over the realtime channel.
func (h Handlers) DispatchCall(c *gin.Context) {
	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured"})
		return
	}

	var req dispatchCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	phone, err := dispatch.NormalizePhone(req.Phone)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone must be a valid 10-digit Indian mobile number"})
		return
	}
	if req.UserInfo.FirstName == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_info.F_Name is required"})
		return
	}

	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	ip := c.ClientIP()

	if h.Caps != nil {
		ok, capErr := h.Caps.Acquire(c.Request.Context(), phone)
		if capErr != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "concurrency check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many calls in flight"})
			return
		}
	}

	channel := req.UserInfo.ChannelPreference
	if channel == "" {
		channel = borrowers.ChannelVoice
	}
	result, err := h.Dispatcher.DispatchAgent(c.Request.Context(), telephony.DispatchRequest{
		Phone: phone,
		Metadata: telephony.CallMetadata{
			Phone:             telephony.DialablePhone(phone),
			FirstName:         req.UserInfo.FirstName,
			LastName:          req.UserInfo.LastName,
			BalanceToPay:      req.UserInfo.CurrentBalance,
			Installment:       req.UserInfo.InstallmentAmount,
			StartDate:         req.UserInfo.LastPaymentDate,
			LastDate:          req.UserInfo.LastPaymentDate,
			ChannelPreference: channel,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		if h.Caps != nil {
			h.Caps.Release(c.Request.Context(), phone)
		}
		if h.Audit != nil {
			_ = h.Audit.LogDispatchRejected(c.Request.Context(), uid, role, ip, phone, err.Error())
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if h.Audit != nil {
		_ = h.Audit.LogDispatchAccepted(c.Request.Context(), uid, role, ip, phone, result.RoomName, result.DispatchID)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "call dispatched",
		"data": gin.H{
			"phone":       phone,
			"room_name":   result.RoomName,
			"dispatch_id": result.DispatchID,
		},
	})
}

// --- Transcripts ---

const defaultTranscriptLimit = 50

// GetTranscript returns recent conversation turns for a borrower, oldest first.
func (h Handlers) GetTranscript(c *gin.Context) {
	if h.Transcripts == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcripts not configured"})
		return
	}
	phone, err := dispatch.NormalizePhone(c.Param("phone"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone"})
		return
	}
	limit := defaultTranscriptLimit
	if raw := c.Query("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	msgs, err := h.Transcripts.Recent(c.Request.Context(), phone, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}
	if msgs == nil {
		msgs = []conversations.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"phone": phone, "messages": msgs})
}

// --- Reports ---

// GetBorrowerReport summarizes the attempt journal for one borrower.
func (h Handlers) GetBorrowerReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	phone, err := dispatch.NormalizePhone(c.Param("phone"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone"})
		return
	}
	out, err := h.Reports.BorrowerSummary(c.Request.Context(), reporting.BorrowerSummaryRequest{
		Phone: phone,
		Range: rangeFromQuery(c),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetCampaignReport summarizes the attempt journal across the whole book.
func (h Handlers) GetCampaignReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reports.CampaignSummary(c.Request.Context(), reporting.CampaignSummaryRequest{
		Range: rangeFromQuery(c),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func rangeFromQuery(c *gin.Context) reporting.TimeRange {
	var tr reporting.TimeRange
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			tr.From = t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			tr.To = t
		}
	}
	return tr
}
