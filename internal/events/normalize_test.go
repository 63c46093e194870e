package events

import "testing"

func TestNormalize_ConvergesBothTransports(t *testing.T) {
	ws := []byte(`{"event":"call_status","data":{"phone":"9876543210","status":"ringing","message":"Call is ringing","room":"room-9876543210"}}`)
	raw := []byte(`{"event":"call_status","phone":"9876543210","status":"ringing","message":"Call is ringing","room":"room-9876543210"}`)

	evWS, ok := Normalize(ws, TransportWebSocket)
	if !ok {
		t.Fatalf("websocket frame dropped")
	}
	evRaw, ok := Normalize(raw, TransportRawSocket)
	if !ok {
		t.Fatalf("raw frame dropped")
	}

	if evWS.Kind != KindCallStatusChanged || evRaw.Kind != KindCallStatusChanged {
		t.Fatalf("kinds: ws=%q raw=%q", evWS.Kind, evRaw.Kind)
	}
	if *evWS.CallStatus != *evRaw.CallStatus {
		t.Fatalf("transports diverged: ws=%+v raw=%+v", evWS.CallStatus, evRaw.CallStatus)
	}
}

func TestNormalize_NumericPhoneTolerated(t *testing.T) {
	ws := []byte(`{"event":"call_status","data":{"phone":9876543210,"status":"completed"}}`)
	ev, ok := Normalize(ws, TransportWebSocket)
	if !ok {
		t.Fatalf("frame dropped")
	}
	if ev.CallStatus.Phone != "9876543210" {
		t.Fatalf("phone = %q", ev.CallStatus.Phone)
	}
}

func TestNormalize_BorrowersUpdate(t *testing.T) {
	ws := []byte(`{"event":"borrowers_update","data":{"borrowers":[{"Mobile_No":"9876543210","F_Name":"Asha"}]}}`)
	ev, ok := Normalize(ws, TransportWebSocket)
	if !ok {
		t.Fatalf("frame dropped")
	}
	if ev.Kind != KindBorrowerListReplaced || len(ev.Borrowers.Borrowers) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Borrowers.Borrowers[0].Phone != "9876543210" {
		t.Fatalf("borrower phone = %q", ev.Borrowers.Borrowers[0].Phone)
	}
}

func TestNormalize_ConversationAndCampaign(t *testing.T) {
	conv := []byte(`{"event":"conversation_update","data":{"phone":"9876543210","sender":"agent","text":"Hello"}}`)
	ev, ok := Normalize(conv, TransportWebSocket)
	if !ok || ev.Kind != KindConversationMessageAppended {
		t.Fatalf("conversation not normalized: %+v ok=%v", ev, ok)
	}

	camp := []byte(`{"event":"campaign_status","phone":"9876543210","status":"Running"}`)
	ev, ok = Normalize(camp, TransportRawSocket)
	if !ok || ev.Kind != KindCampaignStatusChanged || ev.CampaignStatus.Status != "Running" {
		t.Fatalf("campaign not normalized: %+v ok=%v", ev, ok)
	}
}

func TestNormalize_DropsBadInput(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		transport TransportKind
	}{
		{"unknown kind", `{"event":"mystery","data":{}}`, TransportWebSocket},
		{"missing phone", `{"event":"call_status","data":{"status":"completed"}}`, TransportWebSocket},
		{"missing status", `{"event":"call_status","data":{"phone":"9876543210"}}`, TransportWebSocket},
		{"not json", `garbage`, TransportWebSocket},
		{"raw missing phone", `{"event":"conversation_update","text":"hi"}`, TransportRawSocket},
		{"empty text", `{"event":"conversation_update","phone":"9876543210","sender":"agent"}`, TransportRawSocket},
	}
	for _, tc := range cases {
		if _, ok := Normalize([]byte(tc.raw), tc.transport); ok {
			t.Fatalf("%s: expected drop", tc.name)
		}
	}
}

func TestNormalize_ConnectionEvents(t *testing.T) {
	ev, ok := Normalize([]byte(`{"event":"connect"}`), TransportWebSocket)
	if !ok || ev.Kind != KindConnection || !ev.Connection.Connected {
		t.Fatalf("connect not normalized: %+v ok=%v", ev, ok)
	}
	ev, ok = Normalize([]byte(`{"event":"disconnect"}`), TransportRawSocket)
	if !ok || ev.Connection.Connected {
		t.Fatalf("disconnect not normalized: %+v ok=%v", ev, ok)
	}
}
