package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/calls"
	"loanvoice-platform/internal/campaigns"
	"loanvoice-platform/internal/conversations"
	"loanvoice-platform/internal/dispatch"
	"loanvoice-platform/internal/events"
	"loanvoice-platform/internal/realtime"
	"loanvoice-platform/internal/reporting"
	"loanvoice-platform/pkg/logger"
)

// watch is the operator console: it attaches to the realtime channel,
// mirrors server state into local trackers, and optionally uploads a
// borrower book or dispatches a call on startup.
//
// Environment:
//
//	SERVER_URL     HTTP base of the API (default http://localhost:8080)
//	TRANSPORT      websocket (default) or rawsocket
//	RAW_ADDR       host:port of the legacy channel (rawsocket transport)
//	ACCESS_TOKEN   bearer token for upload/dispatch calls
//	UPLOAD_CSV     path of a borrower book to upload on startup
//	DISPATCH_PHONE phone number to call once the channel is up
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(envOr("APP_ENV", "development"))
	slog.SetDefault(log)

	serverURL := strings.TrimRight(envOr("SERVER_URL", "http://localhost:8080"), "/")
	token := os.Getenv("ACCESS_TOKEN")

	bus := events.NewBus()

	directory := borrowers.NewDirectory()
	callTracker := calls.NewTracker(log)
	campaignTracker := campaigns.NewTracker(log)
	transcript := conversations.NewLog()

	reports := reporting.NewService(reporting.NewMemoryRepo())

	// Tracker binds first so reporting sees settled state.
	callTracker.Bind(bus)
	campaignTracker.Bind(bus)
	transcript.Bind(bus)
	reports.Bind(bus, callTracker)
	bus.Subscribe(events.KindBorrowerListReplaced, func(ev events.Event) {
		directory.Replace(ev.Borrowers.Borrowers)
		log.Info("borrower list replaced", "count", directory.Len())
	})
	bus.Subscribe(events.KindConnection, func(ev events.Event) {
		c := ev.Connection
		switch {
		case c.Lost:
			log.Error("connection lost", "transport", string(c.Transport), "reason", c.Reason)
		case c.Connected:
			log.Info("connected", "transport", string(c.Transport))
		default:
			log.Warn("disconnected", "transport", string(c.Transport), "reason", c.Reason)
		}
	})
	bus.Subscribe(events.KindCallStatusChanged, func(ev events.Event) {
		cs := ev.CallStatus
		s := callTracker.Get(cs.Phone)
		log.Info("call status", "phone", cs.Phone, "status", string(s.Status), "message", cs.Message, "attempts", s.Attempts)
	})
	bus.Subscribe(events.KindCampaignStatusChanged, func(ev events.Event) {
		cs := ev.CampaignStatus
		log.Info("campaign status", "phone", cs.Phone, "status", cs.Status)
	})
	bus.Subscribe(events.KindConversationMessageAppended, func(ev events.Event) {
		m := ev.Conversation
		log.Info("conversation", "phone", m.Phone, "sender", m.Sender, "text", m.Text)
	})

	bus.Start(rootCtx)
	defer bus.Close()

	var transport realtime.Transport
	if envOr("TRANSPORT", "websocket") == "rawsocket" {
		transport = &realtime.RawSocketTransport{Addr: envOr("RAW_ADDR", "localhost:9090")}
	} else {
		transport = &realtime.WebSocketTransport{URL: wsURL(serverURL) + "/ws"}
	}

	manager := realtime.NewManager(log, transport, bus)
	manager.Connect(rootCtx)
	defer manager.Disconnect()

	if path := os.Getenv("UPLOAD_CSV"); path != "" {
		uploader := dispatch.NewUploader(serverURL, token)
		list, err := uploader.UploadFile(rootCtx, path)
		if err != nil {
			log.Error("upload failed", "path", path, "err", err)
			os.Exit(1)
		}
		directory.Replace(list)
		log.Info("borrower book uploaded", "count", len(list))
	}

	if raw := os.Getenv("DISPATCH_PHONE"); raw != "" {
		phone, err := dispatch.NormalizePhone(raw)
		if err != nil {
			log.Error("invalid phone", "phone", raw, "err", err)
			os.Exit(1)
		}
		gateway := dispatch.NewGateway(log, serverURL, token, callTracker)
		b, ok := directory.Get(phone)
		if !ok {
			log.Error("phone not in directory", "phone", phone)
			os.Exit(1)
		}
		acc, err := gateway.DispatchCall(rootCtx, phone, b)
		if err != nil {
			log.Error("dispatch failed", "phone", phone, "err", err)
			os.Exit(1)
		}
		log.Info("dispatch accepted", "phone", acc.Phone, "room", acc.RoomName, "dispatch_id", acc.DispatchID)
	}

	<-rootCtx.Done()

	if summary, err := reports.CampaignSummary(context.Background(), reporting.CampaignSummaryRequest{}); err == nil && summary.TotalAttempts > 0 {
		log.Info("session summary",
			"attempts", summary.TotalAttempts,
			"borrowers", summary.BorrowersAttempted,
			"completed", summary.CompletedCalls,
			"failed", summary.FailedCalls)
	}
	log.Info("shutting down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// wsURL swaps the http scheme for its websocket counterpart.
func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}
