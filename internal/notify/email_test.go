package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

type fakeMailClient struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeMailClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Moving Call Relay" {
		t.Errorf("unexpected default from name %q", sender.fromName)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	client := &fakeMailClient{status: 202}
	sender := &SendGridSender{client: client, fromEmail: "relay@example.com", fromName: "Relay", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "sales@example.com", Subject: "Hello", Body: "plain"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0].Subject != "Hello" {
		t.Fatalf("unexpected sent mail %+v", client.sent)
	}
}

func TestSendGridSender_Send_ErrorStatus(t *testing.T) {
	sender := &SendGridSender{client: &fakeMailClient{status: 401}, logger: logging.Default()}
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatal("expected error for 401")
	}

	sender.client = &fakeMailClient{err: errors.New("dial tcp: timeout")}
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "x@example.com", Subject: "s"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
