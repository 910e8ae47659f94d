package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	payload := json.RawMessage(`{}`)

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "valid message", env: Envelope{V: Version, Type: TypeMessage, ID: "x", TS: now, Payload: payload}},
		{name: "valid typing", env: Envelope{V: Version, Type: TypeTypingStart, ID: "x", TS: now, Payload: payload}},
		{name: "valid notification", env: Envelope{V: Version, Type: TypeNotification, ID: "x", TS: now, Payload: payload}},
		{name: "missing version", env: Envelope{Type: TypeMessage}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v2", Type: TypeMessage}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "presence_blast"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate()=nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate()=%v, want nil", err)
			}
		})
	}
}

func TestValidNotificationKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{NotifyFollow, NotifyLike, NotifyComment, NotifyStoryView} {
		if !ValidNotificationKind(kind) {
			t.Fatalf("ValidNotificationKind(%q)=false, want true", kind)
		}
	}
	for _, kind := range []string{"", "message", "mention"} {
		if ValidNotificationKind(kind) {
			t.Fatalf("ValidNotificationKind(%q)=true, want false", kind)
		}
	}
}
